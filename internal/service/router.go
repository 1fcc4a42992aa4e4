package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/cloo-solutions/procminer/internal/domain"
	"github.com/cloo-solutions/procminer/internal/inference"
	"github.com/cloo-solutions/procminer/internal/metrics"
)

// Action is the router's filing decision
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
)

// snippetRunes bounds the body excerpt sent for classification
const snippetRunes = 500

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*```")

// Decision is where a new document will be filed
type Decision struct {
	Action    Action
	Identity  domain.Identity
	Reasoning string
	// Fallback is set when the classification could not be used and the draft identity stands.
	Fallback bool
}

type routerReply struct {
	Action             string `json:"action"`
	TargetCompany      string `json:"target_company"`
	TargetProcessName  string `json:"target_process_name"`
	TargetOrganization string `json:"target_organization"`
	TargetProcess      string `json:"target_process"`
	Reasoning          string `json:"reasoning"`
}

func (r routerReply) organization() string {
	return firstNonEmpty(r.TargetCompany, r.TargetOrganization)
}

func (r routerReply) process() string {
	return firstNonEmpty(r.TargetProcessName, r.TargetProcess)
}

// Router classifies a new document as an update of a known entry or a new one.
// It only reads the identifiers it is given and never touches the store.
type Router struct {
	gen     inference.Generator
	prompts *Prompts
	metrics *metrics.Metrics
}

// NewRouter creates a Router
func NewRouter(gen inference.Generator, prompts *Prompts, m *metrics.Metrics) *Router {
	return &Router{gen: gen, prompts: prompts, metrics: m}
}

// Route decides the identity for body. With no known identifiers the draft is
// filed as new without a call. A failed or unparsable classification falls
// back to the draft.
func (r *Router) Route(ctx context.Context, draft domain.Identity, body string, known []string) Decision {
	if len(known) == 0 {
		r.metrics.Routed("create")
		return Decision{Action: ActionCreate, Identity: draft, Reasoning: "knowledge base is empty"}
	}

	reply, err := r.classify(ctx, draft, body, known)
	if err != nil {
		log.Printf("router: %v; keeping %s", domain.ErrRouterParse.Wrap(err), draft)
		r.metrics.Routed("fallback")
		return Decision{Action: ActionCreate, Identity: draft, Fallback: true}
	}

	decision := resolve(draft, reply)
	log.Printf("router: %s %s (%s)", decision.Action, decision.Identity, decision.Reasoning)
	label := strings.ToLower(string(decision.Action))
	if decision.Fallback {
		label = "fallback"
	}
	r.metrics.Routed(label)
	return decision
}

func (r *Router) classify(ctx context.Context, draft domain.Identity, body string, known []string) (routerReply, error) {
	meta, err := json.Marshal(draft)
	if err != nil {
		return routerReply{}, err
	}
	existing, err := json.Marshal(known)
	if err != nil {
		return routerReply{}, err
	}

	text, err := r.gen.Generate(ctx, []inference.Part{
		inference.Text(r.prompts.Router),
		inference.Text(fmt.Sprintf("NEW SOP METADATA: %s", meta)),
		inference.Text(fmt.Sprintf("NEW SOP CONTENT SNIPPET: %s...", snippet(body, snippetRunes))),
		inference.Text(fmt.Sprintf("EXISTING PROCESSES: %s", existing)),
	})
	if err != nil {
		return routerReply{}, fmt.Errorf("classification call: %w", err)
	}

	return parseRouterReply(text)
}

// parseRouterReply accepts a fenced JSON block or a bare JSON object
func parseRouterReply(text string) (routerReply, error) {
	raw := ""
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		raw = text[start : end+1]
	}
	if raw == "" {
		return routerReply{}, errors.New("no JSON object in reply")
	}

	var reply routerReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return routerReply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

func resolve(draft domain.Identity, reply routerReply) Decision {
	org := strings.TrimSpace(reply.organization())
	process := strings.TrimSpace(reply.process())

	if strings.EqualFold(strings.TrimSpace(reply.Action), string(ActionUpdate)) {
		if domain.Sanitize(org) != "" {
			process = StripOrganizationPrefix(org, process)
		}
		if domain.Sanitize(org) == "" || domain.Sanitize(process) == "" {
			return Decision{Action: ActionCreate, Identity: draft, Reasoning: reply.Reasoning, Fallback: true}
		}
		return Decision{
			Action:    ActionUpdate,
			Identity:  domain.Identity{Organization: org, Process: process},
			Reasoning: reply.Reasoning,
		}
	}

	id := draft
	if domain.Sanitize(org) != "" {
		id.Organization = org
	}
	if domain.Sanitize(process) != "" {
		id.Process = process
	}
	return Decision{Action: ActionCreate, Identity: id, Reasoning: reply.Reasoning}
}

// StripOrganizationPrefix removes a leading "<organization>_" from a process
// name that was copied from a stored filename. Both the sanitized organization
// and its space-free form are recognised.
func StripOrganizationPrefix(organization, process string) string {
	clean := domain.Sanitize(organization)
	for _, prefix := range []string{clean + "_", strings.ReplaceAll(clean, " ", "") + "_"} {
		if prefix == "_" {
			continue
		}
		if rest, ok := strings.CutPrefix(process, prefix); ok && rest != "" {
			return rest
		}
	}
	return process
}

func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
