// Command seed loads demo policies and cases into Couchbase so a fresh
// deployment has reference data for agents to cite. Safe to re-run: inserts
// that collide with existing documents are skipped.
package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"regulonlabs.com/casedesk/internal/dal"
	"regulonlabs.com/casedesk/internal/models"
	"regulonlabs.com/casedesk/pkg/zerolog_config"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Info().Msg("No .env file found, assuming environment variables are set")
	}

	zerolog_config.SetAppPrefix("casedesk-seed")
	if err := zerolog_config.StartupWithEnv(os.Getenv("ELASTICSEARCH_URL"), "logs", "info"); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure logging")
	}

	// Seeding writes demo data into a shared bucket; gate it behind the
	// admin credential so it cannot run against production by accident.
	if os.Getenv("ADMIN_KEY") == "" {
		log.Fatal().Msg("ADMIN_KEY must be set to run the seeder")
	}

	log.Info().Msg("Starting casedesk seed")

	conn, err := dal.NewConnection()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Couchbase")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	policies := dal.NewPolicyModel(conn)
	cases := dal.NewCaseModel(conn)

	seeded := 0
	for _, p := range seedPolicies() {
		if existing, err := policies.GetPolicy(ctx, p.ID); err == nil && existing != nil {
			log.Info().Str("policy", p.ID).Msg("Policy already present, skipping")
			continue
		}
		if err := policies.InsertPolicy(ctx, p); err != nil {
			log.Fatal().Err(err).Str("policy", p.ID).Msg("Failed to seed policy")
		}
		seeded++
	}
	log.Info().Int("seeded", seeded).Msg("Policies seeded")

	seeded = 0
	for _, c := range seedCases() {
		if _, err := cases.GetCase(ctx, c.ID); err == nil {
			log.Info().Str("case", c.ID).Msg("Case already present, skipping")
			continue
		}
		if err := cases.InsertCase(ctx, c); err != nil {
			log.Fatal().Err(err).Str("case", c.ID).Msg("Failed to seed case")
		}
		seeded++
	}
	log.Info().Int("seeded", seeded).Msg("Cases seeded")

	log.Info().Msg("Seed completed successfully")
}

func seedPolicies() []*models.Policy {
	now := time.Now().UTC()
	return []*models.Policy{
		{
			ID:        "aml-screening",
			Name:      "AML Screening Policy",
			Version:   "2.1",
			CreatedAt: now,
			Chunks: []models.PolicyChunk{
				{ID: "scope", Title: "Scope", Text: "This policy applies to all customer onboarding and periodic review workflows."},
				{ID: "pep-checks", Title: "PEP Checks", Text: "Politically exposed persons require enhanced due diligence and senior approval before onboarding."},
				{ID: "sanctions-lists", Title: "Sanctions Lists", Text: "Counterparties must be screened against OFAC, EU, and UN consolidated sanctions lists at onboarding and on every list update."},
			},
		},
		{
			ID:        "data-retention",
			Name:      "Data Retention Policy",
			Version:   "1.4",
			CreatedAt: now,
			Chunks: []models.PolicyChunk{
				{ID: "customer-records", Title: "Customer Records", Text: "Customer identification records are retained for seven years after the relationship ends."},
				{ID: "erasure-requests", Title: "Erasure Requests", Text: "Erasure requests are honored within thirty days unless a legal hold applies."},
			},
		},
		{
			ID:        "kyc-tiering",
			Name:      "KYC Risk Tiering",
			Version:   "3.0",
			CreatedAt: now,
			Chunks: []models.PolicyChunk{
				{ID: "tier-definitions", Title: "Tier Definitions", Text: "Customers are tiered low, medium, or high risk based on jurisdiction, product usage, and ownership structure."},
				{ID: "high-risk-review", Title: "High Risk Review", Text: "High risk customers are reviewed annually; medium risk every two years; low risk every three years."},
			},
		},
	}
}

func seedCases() []*models.Case {
	now := time.Now().UTC()
	systemAudit := func(action string) []models.AuditEntry {
		return []models.AuditEntry{{
			Ts:        now,
			ActorType: models.ActorSystem,
			Action:    action,
		}}
	}
	return []*models.Case{
		{
			ID:         "demo-policy-qa",
			Title:      "Does onboarding entity Atlas Ltd require enhanced due diligence?",
			Type:       models.CasePolicyQA,
			Status:     models.StatusOpen,
			Input:      "Atlas Ltd is incorporated in a high-risk jurisdiction and its beneficial owner holds a public office.",
			AuditTrail: systemAudit("case_seeded"),
			Tags:       []string{"demo", "edd"},
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		{
			ID:         "demo-kyc-triage",
			Title:      "Triage onboarding application for Borealis GmbH",
			Type:       models.CaseKYCTriage,
			Status:     models.StatusOpen,
			Input:      "Standard corporate onboarding, two directors, no adverse media hits.",
			AuditTrail: systemAudit("case_seeded"),
			Tags:       []string{"demo"},
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
}
