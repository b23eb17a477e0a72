package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog/log"

	devicedomain "bloggers-platform/backend/internal/device/domain"
)

const allowQuery = "data.sessions.devices.allow"

// DefaultRegoPolicy lets a principal revoke its own devices only.
const DefaultRegoPolicy = `package sessions.devices

default allow = false

allow if {
	input.requester.id != ""
	input.requester.id == input.device.owner_id
}
`

// OPAEvaluator evaluates the device revocation policy using OPA Rego. The policy is compiled once.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

var _ Evaluator = (*OPAEvaluator)(nil)

// NewOPAEvaluator compiles policy (DefaultRegoPolicy when empty) and prepares the allow query.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"policy_0.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// LoadPolicyFile returns the Rego source at path; empty path yields the default policy.
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return DefaultRegoPolicy, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy file: %w", err)
	}
	return string(b), nil
}

// HealthCheck evaluates the prepared policy against a minimal input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput("", nil)))
	if err != nil {
		return fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// AllowRevoke evaluates data.sessions.devices.allow. Any evaluation failure or non-boolean result denies.
func (e *OPAEvaluator) AllowRevoke(ctx context.Context, requesterID string, session *devicedomain.Session) (bool, error) {
	if session == nil {
		return false, nil
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(requesterID, session)))
	if err != nil {
		log.Warn().Err(err).Str("device_id", session.DeviceID).Msg("policy: evaluation failed, denying")
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allow, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allow, nil
}

func buildInput(requesterID string, session *devicedomain.Session) map[string]interface{} {
	device := map[string]interface{}{
		"id":       "",
		"owner_id": "",
		"ip":       "",
		"title":    "",
	}
	if session != nil {
		device["id"] = session.DeviceID
		device["owner_id"] = session.UserID
		device["ip"] = session.IP
		device["title"] = session.Title
	}
	return map[string]interface{}{
		"requester": map[string]interface{}{"id": requesterID},
		"device":    device,
	}
}
