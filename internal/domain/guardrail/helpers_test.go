package guardrail

import (
	"github.com/cerberus-gate/cerberus/internal/domain/credential"
	"github.com/cerberus-gate/cerberus/pkg/mcp"
)

// remarshal rebuilds a message after its decoded tree was mutated in a
// test, keeping Raw and Decoded consistent.
func remarshal(msg *mcp.Message) (*mcp.Message, error) {
	return mcp.FromValue(msg.Decoded, msg.Direction)
}

func testAgent() *credential.AgentContext {
	return &credential.AgentContext{
		AgentID:        "agent-1",
		AgentName:      "test-agent",
		WorkspaceID:    "ws-1",
		OrganisationID: "org-1",
		UpstreamURL:    "http://upstream.local",
	}
}
