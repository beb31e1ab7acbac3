package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/formbeacon/internal/dispatch"
)

// Script is a recorded sequence of page signals.
//
//	url: https://example.com/contact?utm_source=ads
//	steps:
//	  - {kind: focus, target: name}
//	  - {kind: input, target: name, value: Ana}
//	  - wait: 700ms
//	  - {kind: submit, target: "#contact"}
type Script struct {
	URL   string `yaml:"url"`
	Steps []Step `yaml:"steps"`
}

// Step is either a signal or a pause. A pause advances the tracker clock.
type Step struct {
	dispatch.Signal `yaml:",inline"`
	Wait            time.Duration `yaml:"wait,omitempty"`
}

// LoadScript reads and checks a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return ParseScript(data)
}

// ParseScript decodes a script and rejects steps that are neither a signal nor a pause.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	for i, st := range s.Steps {
		switch {
		case st.Kind == "" && st.Wait <= 0:
			return nil, fmt.Errorf("script step %d: needs a kind or a positive wait", i)
		case st.Kind != "" && st.Wait != 0:
			return nil, fmt.Errorf("script step %d: a step is a signal or a wait, not both", i)
		}
	}
	return &s, nil
}
