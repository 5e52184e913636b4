package cli

import (
	"encoding/base64"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/latticekv/lattice/internal/kvstore"
	"github.com/latticekv/lattice/internal/kvvalue"
)

// batchFile is the YAML shape `apply` reads: one AtomicWrite worth of
// checks, mutations, and enqueues. Keys are always string-part lists, the
// same simplification the other scripting commands make.
type batchFile struct {
	Checks    []batchCheck    `yaml:"checks"`
	Mutations []batchMutation `yaml:"mutations"`
	Enqueues  []batchEnqueue  `yaml:"enqueues"`
}

type batchCheck struct {
	Key                  []string `yaml:"key"`
	ExpectedVersionstamp string   `yaml:"expected_versionstamp,omitempty"` // base64; omit means "must be absent"
}

type batchMutation struct {
	Key         []string `yaml:"key"`
	Kind        string   `yaml:"kind"` // set|delete|sum|min|max
	Value       string   `yaml:"value,omitempty"`
	ValueBase64 string   `yaml:"value_base64,omitempty"`
	Operand     uint64   `yaml:"operand,omitempty"`
	ExpireInMs  *int64   `yaml:"expire_in_ms,omitempty"`
}

type batchEnqueue struct {
	Payload           string     `yaml:"payload,omitempty"`
	PayloadBase64     string     `yaml:"payload_base64,omitempty"`
	DelayMs           int64      `yaml:"delay_ms,omitempty"`
	BackoffScheduleMs []int64    `yaml:"backoff_schedule_ms,omitempty"`
	KeysIfUndelivered [][]string `yaml:"keys_if_undelivered,omitempty"`
}

// loadBatchFile reads and parses path into an AtomicWrite, resolving key
// part lists and base64-or-plain-text values/payloads along the way.
func loadBatchFile(path string) (kvstore.AtomicWrite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return kvstore.AtomicWrite{}, fmt.Errorf("read batch file: %w", err)
	}

	var bf batchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return kvstore.AtomicWrite{}, fmt.Errorf("parse batch file: %w", err)
	}

	aw := kvstore.AtomicWrite{
		Checks:    make([]kvstore.Check, len(bf.Checks)),
		Mutations: make([]kvstore.Mutation, len(bf.Mutations)),
		Enqueues:  make([]kvstore.Enqueue, len(bf.Enqueues)),
	}

	for i, c := range bf.Checks {
		key, err := parseKeyParts(c.Key)
		if err != nil {
			return kvstore.AtomicWrite{}, fmt.Errorf("checks[%d]: %w", i, err)
		}
		check := kvstore.Check{Key: key}
		if c.ExpectedVersionstamp != "" {
			raw, err := base64.StdEncoding.DecodeString(c.ExpectedVersionstamp)
			if err != nil {
				return kvstore.AtomicWrite{}, fmt.Errorf("checks[%d]: invalid expected_versionstamp: %w", i, err)
			}
			var vs kvstore.Versionstamp
			if len(raw) != len(vs) {
				return kvstore.AtomicWrite{}, fmt.Errorf("checks[%d]: expected_versionstamp must decode to %d bytes", i, len(vs))
			}
			copy(vs[:], raw)
			check.Expected = &vs
		}
		aw.Checks[i] = check
	}

	for i, m := range bf.Mutations {
		key, err := parseKeyParts(m.Key)
		if err != nil {
			return kvstore.AtomicWrite{}, fmt.Errorf("mutations[%d]: %w", i, err)
		}
		mutation := kvstore.Mutation{Key: key, Operand: m.Operand, ExpireInMs: m.ExpireInMs}
		switch m.Kind {
		case "set":
			mutation.Kind = kvstore.MutationSet
			value, err := resolveValue(m.Value, m.ValueBase64)
			if err != nil {
				return kvstore.AtomicWrite{}, fmt.Errorf("mutations[%d]: %w", i, err)
			}
			mutation.Value = kvvalue.RawBytes(value)
		case "delete":
			mutation.Kind = kvstore.MutationDelete
		case "sum":
			mutation.Kind = kvstore.MutationSum
		case "min":
			mutation.Kind = kvstore.MutationMin
		case "max":
			mutation.Kind = kvstore.MutationMax
		default:
			return kvstore.AtomicWrite{}, fmt.Errorf("mutations[%d]: unknown kind %q", i, m.Kind)
		}
		aw.Mutations[i] = mutation
	}

	for i, e := range bf.Enqueues {
		payload, err := resolveValue(e.Payload, e.PayloadBase64)
		if err != nil {
			return kvstore.AtomicWrite{}, fmt.Errorf("enqueues[%d]: %w", i, err)
		}
		enqueue := kvstore.Enqueue{
			Payload:           payload,
			DelayMs:           e.DelayMs,
			BackoffScheduleMs: e.BackoffScheduleMs,
		}
		for j, parts := range e.KeysIfUndelivered {
			key, err := parseKeyParts(parts)
			if err != nil {
				return kvstore.AtomicWrite{}, fmt.Errorf("enqueues[%d].keys_if_undelivered[%d]: %w", i, j, err)
			}
			enqueue.KeysIfUndelivered = append(enqueue.KeysIfUndelivered, key)
		}
		aw.Enqueues[i] = enqueue
	}

	return aw, nil
}

// resolveValue prefers an explicit base64 field over the plain-text one,
// mirroring the ergonomics of the batch format: most fixtures write plain
// text, binary fixtures opt into base64 explicitly.
func resolveValue(plain, b64 string) ([]byte, error) {
	if b64 != "" {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64: %w", err)
		}
		return raw, nil
	}
	return []byte(plain), nil
}
