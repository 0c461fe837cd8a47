package app

import (
	"fmt"

	"github.com/hupe1980/nablmesh/config"
	"github.com/hupe1980/nablmesh/nabl"
	"github.com/hupe1980/nablmesh/tool"
)

// Profile describes one of the two services: which tools the model sees,
// how the conversation is seeded and what /chat returns.
type Profile struct {
	Name string
	// Framework is reported by /health.
	Framework      string
	AgentName      string
	Instruction    string
	PromptTemplate string
	// IncludeToolResults adds tool_results to /chat responses.
	IncludeToolResults bool
	Tools              func(r nabl.Runner) []tool.Tool
}

const graphInstruction = `You are iClaw, an AI assistant that can help with:
- Website audits (use nabl_audit tool)
- Finding businesses (use nabl_discovery tool)

Be concise and helpful. When using tools, explain what you're doing.`

const crewInstruction = `You are a Research Assistant.
Your goal: Help users find information about businesses and websites.

You are an expert at researching businesses and analyzing websites. You use specialized tools to gather accurate, real-time information.`

const crewPromptTemplate = `User request: {{.message}}

Analyze the request and use your tools if needed.
- For website analysis requests, use the Website Audit tool
- For finding businesses, use the Business Discovery tool (format: niche|location)

Provide a helpful, concise response.`

// GraphProfile returns structured workflow results as tool output and lists
// them in the /chat response.
var GraphProfile = Profile{
	Name:               config.ProfileGraph,
	Framework:          "langgraph",
	AgentName:          "iclaw-graph",
	Instruction:        graphInstruction,
	IncludeToolResults: true,
	Tools: func(r nabl.Runner) []tool.Tool {
		return []tool.Tool{nabl.AuditTool(r), nabl.DiscoveryTool(r)}
	},
}

// CrewProfile renders workflow results as text and answers with text only.
var CrewProfile = Profile{
	Name:           config.ProfileCrew,
	Framework:      "crewai",
	AgentName:      "research-assistant",
	Instruction:    crewInstruction,
	PromptTemplate: crewPromptTemplate,
	Tools: func(r nabl.Runner) []tool.Tool {
		return []tool.Tool{nabl.WebsiteAuditTool(r), nabl.BusinessDiscoveryTool(r)}
	},
}

// ProfileByName looks up a profile.
func ProfileByName(name string) (Profile, error) {
	switch name {
	case config.ProfileGraph:
		return GraphProfile, nil
	case config.ProfileCrew:
		return CrewProfile, nil
	default:
		return Profile{}, fmt.Errorf("unknown profile %q", name)
	}
}
