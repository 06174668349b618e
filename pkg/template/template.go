// Package template generates starter server records for common setups.
package template

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warden-sh/warden/internal/record"
)

// TemplateType selects which starter record to generate.
type TemplateType string

const (
	TypeJava    TemplateType = "java"
	TypePaper   TemplateType = "paper"
	TypeForge   TemplateType = "forge"
	TypeBedrock TemplateType = "bedrock"
	TypeProxy   TemplateType = "proxy"
	TypeCustom  TemplateType = "custom"
)

// Generator produces server record skeletons.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a server record based on the template type and name.
func (g *Generator) Generate(templateType TemplateType, name string) (*record.Record, error) {
	switch templateType {
	case TypeJava, TypePaper, TypeForge:
		return g.generateJava(name), nil
	case TypeBedrock:
		return g.generateBedrock(name), nil
	case TypeProxy:
		return g.generateProxy(name), nil
	case TypeCustom:
		return g.generateCustom(name), nil
	default:
		return nil, fmt.Errorf("unknown template type: %s (supported: java, bedrock, proxy, custom)", templateType)
	}
}

// GenerateJSON renders the template as an indented record file body.
func (g *Generator) GenerateJSON(templateType TemplateType, name string) ([]byte, error) {
	rec, err := g.Generate(templateType, name)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal template: %w", err)
	}
	return data, nil
}

// GetSupportedTypes returns all supported template types.
func (g *Generator) GetSupportedTypes() []string {
	return []string{
		string(TypeJava),
		string(TypeBedrock),
		string(TypeProxy),
		string(TypeCustom),
	}
}

func base(name string, protocol record.Protocol, port int) *record.Record {
	return &record.Record{
		Name:     name,
		Host:     "localhost",
		Port:     port,
		Protocol: protocol,
		Launch: record.Launch{
			WorkDir: "/srv/" + name,
		},
		Ping: record.PingConfig{
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
		},
	}
}

func (g *Generator) generateJava(name string) *record.Record {
	rec := base(name, record.ProtocolJava, 25565)
	rec.Launch.Command = "java"
	rec.Launch.Args = []string{"-Xms2G", "-Xmx4G", "-jar", "server.jar", "nogui"}
	rec.Launch.StopSignal = "SIGINT"
	return rec
}

func (g *Generator) generateBedrock(name string) *record.Record {
	rec := base(name, record.ProtocolBedrock, 19132)
	rec.Launch.Command = "./bedrock_server"
	rec.Launch.StopSignal = "SIGINT"
	return rec
}

func (g *Generator) generateProxy(name string) *record.Record {
	rec := base(name, record.ProtocolJava, 25577)
	rec.Launch.Command = "java"
	rec.Launch.Args = []string{"-Xms512M", "-Xmx1G", "-jar", "velocity.jar"}
	rec.Launch.StopSignal = "SIGTERM"
	// Proxies answer pings before their backends are up.
	rec.Ping.Interval = 15 * time.Second
	return rec
}

func (g *Generator) generateCustom(name string) *record.Record {
	rec := base(name, record.ProtocolJava, 25565)
	rec.Launch.Command = "./start.sh"
	return rec
}
