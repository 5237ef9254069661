// Package policy holds the lookup tables that drive the request lifecycle:
// which status may follow which, who may trigger a target status, which
// targets need a one-time passcode and who may issue one.
package policy

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusGave      Status = "gave"
	StatusReturned  Status = "returned"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Actor is the party of a request allowed to act.
type Actor string

const (
	ActorOwner     Actor = "owner"
	ActorRequester Actor = "requester"
)

// Parties are the two sides of a request, as canonical user ids.
type Parties struct {
	Owner     string
	Requester string
}

// Permits reports whether caller plays role a in p.
func (a Actor) Permits(p Parties, caller string) bool {
	switch a {
	case ActorOwner:
		return caller != "" && caller == p.Owner
	case ActorRequester:
		return caller != "" && caller == p.Requester
	}
	return false
}

// Config is the declarative form of a Policy. It is what the YAML file holds.
type Config struct {
	Initial     Status              `yaml:"initial"`
	Transitions map[Status][]Status `yaml:"transitions"`
	OTPRequired []Status            `yaml:"otp_required"`
	OwnerOnly   []Status            `yaml:"owner_only"`
	OTPIssuers  map[Status]Actor    `yaml:"otp_issuers"`
	Lent        []Status            `yaml:"lent"`
}

func DefaultConfig() Config {
	return Config{
		Initial: StatusRequested,
		Transitions: map[Status][]Status{
			StatusRequested: {StatusGave, StatusRejected, StatusCancelled},
			StatusGave:      {StatusReturned},
			StatusReturned:  {},
			StatusRejected:  {},
			StatusCancelled: {},
		},
		OTPRequired: []Status{StatusGave, StatusReturned},
		OwnerOnly:   []Status{StatusGave, StatusRejected},
		OTPIssuers: map[Status]Actor{
			StatusRequested: ActorOwner,
			StatusGave:      ActorRequester,
		},
		Lent: []Status{StatusGave},
	}
}

type Policy struct {
	initial     Status
	statuses    []Status
	transitions map[Status]map[Status]struct{}
	otpRequired map[Status]struct{}
	ownerOnly   map[Status]struct{}
	otpIssuers  map[Status]Actor
	lent        map[Status]struct{}
}

// Default returns the built-in policy. The built-in tables are known good.
func Default() *Policy {
	p, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return p
}

// New validates cfg and builds a Policy. Every status referenced anywhere
// must have an entry in Transitions, terminal ones with an empty list.
func New(cfg Config) (*Policy, error) {
	if len(cfg.Transitions) == 0 {
		return nil, fmt.Errorf("policy: no transitions defined")
	}
	p := &Policy{
		initial:     cfg.Initial,
		transitions: make(map[Status]map[Status]struct{}, len(cfg.Transitions)),
		otpRequired: map[Status]struct{}{},
		ownerOnly:   map[Status]struct{}{},
		otpIssuers:  map[Status]Actor{},
		lent:        map[Status]struct{}{},
	}
	for from := range cfg.Transitions {
		if strings.TrimSpace(string(from)) == "" {
			return nil, fmt.Errorf("policy: empty status name")
		}
		p.statuses = append(p.statuses, from)
		p.transitions[from] = map[Status]struct{}{}
	}
	slices.Sort(p.statuses)

	known := func(s Status, where string) error {
		if _, ok := p.transitions[s]; !ok {
			return fmt.Errorf("policy: %s references %q which has no transitions entry", where, s)
		}
		return nil
	}
	if err := known(cfg.Initial, "initial"); err != nil {
		return nil, err
	}
	for from, targets := range cfg.Transitions {
		for _, to := range targets {
			if err := known(to, "transitions["+string(from)+"]"); err != nil {
				return nil, err
			}
			if to == cfg.Initial {
				return nil, fmt.Errorf("policy: %q cannot move back to the initial status", from)
			}
			p.transitions[from][to] = struct{}{}
		}
	}
	for _, s := range cfg.OTPRequired {
		if err := known(s, "otp_required"); err != nil {
			return nil, err
		}
		p.otpRequired[s] = struct{}{}
	}
	for _, s := range cfg.OwnerOnly {
		if err := known(s, "owner_only"); err != nil {
			return nil, err
		}
		p.ownerOnly[s] = struct{}{}
	}
	for s, a := range cfg.OTPIssuers {
		if err := known(s, "otp_issuers"); err != nil {
			return nil, err
		}
		if a != ActorOwner && a != ActorRequester {
			return nil, fmt.Errorf("policy: otp_issuers[%s]: unknown actor %q", s, a)
		}
		p.otpIssuers[s] = a
	}
	for _, s := range cfg.Lent {
		if err := known(s, "lent"); err != nil {
			return nil, err
		}
		p.lent[s] = struct{}{}
	}
	return p, nil
}

// Load reads a YAML policy file.
func Load(path string) (*Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Policy, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("policy: decode: %w", err)
	}
	return New(cfg)
}

func (p *Policy) Initial() Status { return p.initial }

// Statuses returns the vocabulary in sorted order.
func (p *Policy) Statuses() []Status { return slices.Clone(p.statuses) }

func (p *Policy) Known(s Status) bool {
	_, ok := p.transitions[s]
	return ok
}

// Allowed reports whether a request in from may move to to.
func (p *Policy) Allowed(from, to Status) bool {
	_, ok := p.transitions[from][to]
	return ok
}

// Next lists the statuses reachable from s, sorted.
func (p *Policy) Next(s Status) []Status {
	out := make([]Status, 0, len(p.transitions[s]))
	for to := range p.transitions[s] {
		out = append(out, to)
	}
	slices.Sort(out)
	return out
}

func (p *Policy) IsTerminal(s Status) bool { return len(p.transitions[s]) == 0 }

func (p *Policy) RequiresOTP(to Status) bool {
	_, ok := p.otpRequired[to]
	return ok
}

// Actor returns the party allowed to move a request into to.
func (p *Policy) Actor(to Status) Actor {
	if _, ok := p.ownerOnly[to]; ok {
		return ActorOwner
	}
	return ActorRequester
}

// OTPIssuer returns who may generate a passcode while a request sits in s.
func (p *Policy) OTPIssuer(s Status) (Actor, bool) {
	a, ok := p.otpIssuers[s]
	return a, ok
}

// Available reports whether a book is on the shelf once its request reaches s.
func (p *Policy) Available(s Status) bool {
	_, lent := p.lent[s]
	return !lent
}
