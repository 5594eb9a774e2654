package agent

import (
	"fmt"

	"github.com/crosslink-ai/crosslink/internal/config"
	"github.com/crosslink-ai/crosslink/internal/parser"
)

// FromDefinition builds a concrete agent from a config definition.
// The parser identifier is derived from the agent name and parser kind
// (e.g. "claude_stream_json") so the Output always names which concrete
// parser produced it.
func FromDefinition(def config.AgentDef) (*Agent, error) {
	var p parser.Parser
	switch def.Parser {
	case config.ParserPlaintext:
		p = parser.NewPlaintextParser(def.Name+"_plaintext", def.Display())
	case config.ParserStreamJSON:
		p = parser.NewStreamJSONParser(def.Name+"_stream_json", def.Display(), def.VersionKey)
	default:
		return nil, fmt.Errorf("agent %q: %w: %q", def.Name, config.ErrUnknownParser, def.Parser)
	}

	var recovery RecoveryFunc
	switch def.Recovery {
	case "", config.RecoveryNone:
		recovery = nil
	case config.RecoverySalvage:
		recovery = SalvageRecovery
	default:
		return nil, fmt.Errorf("agent %q: %w: %q", def.Name, config.ErrUnknownRecover, def.Recovery)
	}

	return New(def.Name, p, recovery), nil
}

// BuildAll constructs agents for every definition, keyed by name.
func BuildAll(defs []config.AgentDef) (map[string]*Agent, error) {
	agents := make(map[string]*Agent, len(defs))
	for _, def := range defs {
		a, err := FromDefinition(def)
		if err != nil {
			return nil, err
		}
		agents[def.Name] = a
	}
	return agents, nil
}
