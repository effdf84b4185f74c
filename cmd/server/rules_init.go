// ThreatLens - Real-Time Security Event Analytics and ML Threat Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threatlens

package main

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/threatlens/internal/config"
	"github.com/tomtom215/threatlens/internal/rules"
)

// buildRuleEngine creates the rule engine with the built-in rules, applying
// threshold overrides from the settings on top of each rule's defaults.
func buildRuleEngine(cfg config.RulesConfig) (*rules.Engine, error) {
	engine := rules.NewEngine(rules.DefaultRules()...)

	if cfg.BruteForceAttempts > 0 {
		rc := rules.DefaultBruteForceConfig()
		rc.AttemptsThreshold = cfg.BruteForceAttempts
		if err := configureRule(engine, rules.RuleTypeBruteForce, rc); err != nil {
			return nil, err
		}
	}

	if cfg.PortScanUniquePorts > 0 {
		rc := rules.DefaultPortScanConfig()
		rc.UniquePortsThreshold = cfg.PortScanUniquePorts
		if err := configureRule(engine, rules.RuleTypePortScan, rc); err != nil {
			return nil, err
		}
	}

	if cfg.PayloadSizeLimit > 0 {
		rc := rules.DefaultPayloadSizeConfig()
		rc.MaxBytes = cfg.PayloadSizeLimit
		if err := configureRule(engine, rules.RuleTypePayloadSize, rc); err != nil {
			return nil, err
		}
	}

	if cfg.OffHoursStart != cfg.OffHoursEnd {
		rc := rules.DefaultOffHoursConfig()
		rc.StartHour = cfg.OffHoursStart
		rc.EndHour = cfg.OffHoursEnd
		if err := configureRule(engine, rules.RuleTypeOffHours, rc); err != nil {
			return nil, err
		}
	}

	if len(cfg.BlockedSources) > 0 {
		rc := rules.DefaultSourceBlocklistConfig()
		// Entries with a prefix length are network ranges, the rest are
		// exact source identifiers.
		for _, entry := range cfg.BlockedSources {
			if strings.Contains(entry, "/") {
				rc.CIDRs = append(rc.CIDRs, entry)
			} else {
				rc.Sources = append(rc.Sources, entry)
			}
		}
		if err := configureRule(engine, rules.RuleTypeSourceBlocklist, rc); err != nil {
			return nil, err
		}
	}

	return engine, nil
}

func configureRule(engine *rules.Engine, ruleType rules.RuleType, rc any) error {
	raw, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("marshal %s config: %w", ruleType, err)
	}
	if err := engine.ConfigureRule(ruleType, raw); err != nil {
		return fmt.Errorf("configure %s: %w", ruleType, err)
	}
	return nil
}
