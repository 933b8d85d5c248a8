package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"sponsor-engagement-api/config"
	"sponsor-engagement-api/services"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config.InitLogging()
	config.ReloadMailerConfig()
	config.InitDB()

	var (
		reportEmail   string
		triggerSource string
	)

	flag.StringVar(&reportEmail, "report-email", os.Getenv("SYNC_REPORT_EMAIL"), "email address for the run summary (optional)")
	flag.StringVar(&triggerSource, "trigger-source", "cli", "label recorded on the sync run row")
	flag.Parse()

	registryCfg, err := config.LoadRegistryConfig()
	if err != nil {
		log.Fatalf("registry sync: %v", err)
	}

	registry := services.NewRegistryClient(registryCfg, nil, config.DB)
	job := services.NewRegistrySyncJobService(nil, registry)

	summary, err := job.Run(context.Background(), &services.RegistrySyncInput{
		TriggerSource: triggerSource,
		ReportEmail:   reportEmail,
	})
	if err != nil {
		log.Fatalf("registry sync failed to start: %v", err)
	}

	fmt.Printf("Run %s: %d pages fetched (total records: %d)\n", summary.RunUUID, summary.PagesFetched, summary.TotalRecords)
	fmt.Printf("Records fetched: %d, qualified: %d\n", summary.RecordsFetched, summary.RecordsQualified)
	fmt.Printf("Studies created: %d, updated: %d\n", summary.StudiesCreated, summary.StudiesUpdated)
	fmt.Printf("Organisations created: %d, updated: %d\n", summary.OrganisationsCreated, summary.OrganisationsUpdated)
	fmt.Printf("Roles created: %d, updated: %d\n", summary.RolesCreated, summary.RolesUpdated)
	fmt.Printf("Links added: %d org-role, %d study-organisation, %d study-funder\n",
		summary.OrganisationRolesLinked,
		summary.StudyOrganisationsLinked,
		summary.StudyFundersLinked,
	)
	fmt.Printf("Evaluation categories added: %d\n", summary.EvaluationCategoriesAdded)
	fmt.Printf("Studies flagged due assessment: %d\n", summary.StudiesFlaggedDue)

	if summary.ErrorMessage != "" {
		fmt.Printf("Run finished with error: %s\n", summary.ErrorMessage)
		os.Exit(2)
	}
}
