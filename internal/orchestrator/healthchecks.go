/*
Copyright 2026 Crucible Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package orchestrator

import "context"

// ProviderCheck adapts the orchestrator's provider probe into
// internal/healthcheck.HealthCheck, so the debug HTTP /health endpoint
// can report it alongside other checks (SPEC_FULL.md §2.1 component J).
type ProviderCheck struct {
	Orchestrator *Orchestrator
}

func (c ProviderCheck) Name() string { return "provider" }

func (c ProviderCheck) Check(ctx context.Context) error {
	_, err := c.Orchestrator.Probe(ctx)
	return err
}

// CatalogCheck adapts a catalog ping into internal/healthcheck.HealthCheck.
type CatalogCheck struct {
	Orchestrator *Orchestrator
}

func (c CatalogCheck) Name() string { return "catalog" }

func (c CatalogCheck) Check(ctx context.Context) error {
	return c.Orchestrator.cat.Ping(ctx)
}
