package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"workshop-reminders/internal/api"
	"workshop-reminders/internal/config"
	"workshop-reminders/internal/db"
	"workshop-reminders/internal/models"
	"workshop-reminders/internal/parser"
	"workshop-reminders/internal/schedule"

	retry "github.com/codeGROOVE-dev/retry-go"
	"github.com/spf13/cobra"
)

var (
	dbPath   string
	database *db.Database
)

func main() {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "workshop-reminders",
		Short: "Workshop Reminders - maintenance reminder scheduling for a vehicle workshop",
		Long: `A CLI tool and REST service that tracks customer vehicles, evaluates
maintenance reminder rules, and manages the reminder queue through its
delivery lifecycle. Backed by SQLite.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", cfg.DBPath, "Path to SQLite database")

	// Add commands
	rootCmd.AddCommand(serverCmd(cfg))
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(vehicleCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initDB initializes database connection. A concurrent CLI invocation can
// hold the sqlite lock briefly, so retry the open a few times.
func initDB() error {
	return retry.Do(
		func() error {
			var err error
			database, err = db.New(dbPath)
			return err
		},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
	)
}

// serverCmd starts the REST API server
func serverCmd(cfg *config.Config) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			server := api.NewServer(database)
			addr := fmt.Sprintf(":%d", port)

			fmt.Printf("🔧 Workshop Reminders API Server\n")
			fmt.Printf("   Listening on http://localhost%s\n", addr)
			fmt.Printf("   Database: %s\n\n", dbPath)
			fmt.Println("Available endpoints:")
			fmt.Println("  GET    /health")
			fmt.Println("  GET    /api/v1/vehicles")
			fmt.Println("  POST   /api/v1/vehicles")
			fmt.Println("  GET    /api/v1/vehicles/{plate}")
			fmt.Println("  POST   /api/v1/vehicles/{plate}/service")
			fmt.Println("  GET    /api/v1/rules")
			fmt.Println("  PUT    /api/v1/rules")
			fmt.Println("  GET    /api/v1/reminders")
			fmt.Println("  POST   /api/v1/reminders/generate")
			fmt.Println("  POST   /api/v1/reminders/{id}/status")
			fmt.Println("  DELETE /api/v1/reminders/dismissed")
			fmt.Println("  GET    /api/v1/stats")
			fmt.Println()

			return http.ListenAndServe(addr, server.Router())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", cfg.HTTPPort, "Server port")
	return cmd
}

// generateCmd runs one reminder generation pass
func generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate reminders for vehicles that are due or soon due",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			vehicles, err := database.ListVehicles()
			if err != nil {
				return fmt.Errorf("error listing vehicles: %w", err)
			}
			rules, err := database.LoadRules()
			if err != nil {
				return fmt.Errorf("error loading rules: %w", err)
			}
			existing, err := database.ListReminders(models.ReminderQuery{})
			if err != nil {
				return fmt.Errorf("error reading queue: %w", err)
			}

			entries := schedule.Generate(vehicles, rules, existing, time.Now())
			if len(entries) == 0 {
				fmt.Println("No new reminders. Queue is up to date.")
				return nil
			}

			if _, err := database.InsertReminders(entries); err != nil {
				return fmt.Errorf("error saving reminders: %w", err)
			}

			schedule.SortQueue(entries)
			fmt.Printf("✓ Generated %d reminder(s)\n\n", len(entries))
			for _, e := range entries {
				fmt.Printf("  %-10s due %s  %s\n", e.Plate, e.DueDate, e.Message)
			}
			return nil
		},
	}
}

// queueCmd manages the reminder queue
func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Reminder queue commands",
	}

	var status string
	var search string
	var limit int

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List queued reminders, due-soonest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			q := models.ReminderQuery{Search: search, Limit: limit}
			if status != "" {
				st := models.Status(status)
				if !st.Valid() {
					return fmt.Errorf("unknown status: %s", status)
				}
				q.Status = st
			}

			reminders, err := database.ListReminders(q)
			if err != nil {
				return fmt.Errorf("error listing reminders: %w", err)
			}

			if len(reminders) == 0 {
				fmt.Println("No reminders. Use 'workshop-reminders generate' to create upcoming reminders.")
				return nil
			}

			fmt.Printf("%-36s %-10s %-12s %-9s %s\n", "ID", "Plate", "Due Date", "Status", "Owner")
			for _, r := range reminders {
				fmt.Printf("%-36s %-10s %-12s %-9s %s\n", r.ID, r.Plate, r.DueDate, r.Status, r.OwnerName)
			}
			return nil
		},
	}
	listCmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (pending, sent, dismissed)")
	listCmd.Flags().StringVarP(&search, "search", "q", "", "Search plate, owner, message")
	listCmd.Flags().IntVarP(&limit, "limit", "l", 100, "Maximum entries to return")

	sendCmd := &cobra.Command{
		Use:   "send [id]",
		Short: "Mark a reminder as sent",
		Args:  cobra.ExactArgs(1),
		RunE:  statusRunE(models.StatusSent),
	}

	dismissCmd := &cobra.Command{
		Use:   "dismiss [id]",
		Short: "Dismiss a reminder",
		Args:  cobra.ExactArgs(1),
		RunE:  statusRunE(models.StatusDismissed),
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove all dismissed reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			removed, err := database.PurgeDismissed()
			if err != nil {
				return fmt.Errorf("error purging queue: %w", err)
			}
			fmt.Printf("✓ Removed %d dismissed reminder(s)\n", removed)
			return nil
		},
	}

	cmd.AddCommand(listCmd, sendCmd, dismissCmd, purgeCmd)
	return cmd
}

// statusRunE builds the RunE for a queue status transition command
func statusRunE(next models.Status) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := initDB(); err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		defer database.Close()

		updated, err := database.SetReminderStatus(args[0], next)
		if err != nil {
			return fmt.Errorf("error updating reminder: %w", err)
		}
		fmt.Printf("✓ Reminder %s for %s is now %s\n", updated.ID, updated.Plate, updated.Status)
		return nil
	}
}

// vehicleCmd manages the vehicle registry
func vehicleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Vehicle registry commands",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all vehicles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			vehicles, err := database.ListVehicles()
			if err != nil {
				return fmt.Errorf("error listing vehicles: %w", err)
			}

			if len(vehicles) == 0 {
				fmt.Println("No vehicles found. Use 'workshop-reminders seed' to create sample data.")
				return nil
			}

			fmt.Printf("%-10s %-20s %-16s %-10s %-12s\n", "Plate", "Owner", "Phone", "Last KM", "Last Service")
			for _, v := range vehicles {
				lastOdo := "—"
				if v.LastOdo != nil {
					lastOdo = fmt.Sprintf("%d", *v.LastOdo)
				}
				lastDate := "—"
				if v.LastServiceDate != nil {
					lastDate = *v.LastServiceDate
				}
				fmt.Printf("%-10s %-20s %-16s %-10s %-12s\n", v.Plate, v.OwnerName, v.Phone, lastOdo, lastDate)
			}
			return nil
		},
	}

	var owner, phone, vMake, vModel, year, notes, lastDate string
	var lastOdo int

	addCmd := &cobra.Command{
		Use:   "add [plate]",
		Short: "Register a vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			v := models.Vehicle{
				Plate:     models.NormalizePlate(args[0]),
				OwnerName: owner,
				Phone:     phone,
				Make:      vMake,
				Model:     vModel,
				Year:      year,
				Notes:     notes,
			}
			if cmd.Flags().Changed("odo") {
				v.LastOdo = &lastOdo
			}
			if lastDate != "" {
				v.LastServiceDate = &lastDate
			}

			if errs := parser.ValidateVehicle(&v); len(errs) > 0 {
				return fmt.Errorf("invalid vehicle: %s", errs[0])
			}
			if err := database.InsertVehicle(&v); err != nil {
				return fmt.Errorf("error adding vehicle: %w", err)
			}
			fmt.Printf("✓ Registered %s (%s)\n", v.Plate, v.OwnerName)
			return nil
		},
	}
	addCmd.Flags().StringVar(&owner, "owner", "", "Owner name")
	addCmd.Flags().StringVar(&phone, "phone", "", "Owner phone")
	addCmd.Flags().StringVar(&vMake, "make", "", "Vehicle make")
	addCmd.Flags().StringVar(&vModel, "model", "", "Vehicle model")
	addCmd.Flags().StringVar(&year, "year", "", "Vehicle year")
	addCmd.Flags().StringVar(&notes, "notes", "", "Notes")
	addCmd.Flags().IntVar(&lastOdo, "odo", 0, "Odometer at last service")
	addCmd.Flags().StringVar(&lastDate, "date", "", "Last service date (YYYY-MM-DD)")

	var format string
	var validate bool

	importCmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import vehicles from files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			p := parser.NewParser(format)
			totalRecords := 0
			totalErrors := 0

			for _, file := range args {
				fmt.Printf("Processing %s...\n", file)

				records, err := p.ParseFile(file)
				if err != nil {
					fmt.Printf("  Error: %v\n", err)
					totalErrors++
					continue
				}

				inserted := 0
				for _, v := range records {
					if validate {
						if errs := parser.ValidateVehicle(&v); len(errs) > 0 {
							fmt.Printf("  Warning: %s: %s\n", v.Plate, errs[0])
							totalErrors++
							continue
						}
					}
					if err := database.InsertVehicle(&v); err != nil {
						fmt.Printf("  Warning: %s: %v\n", v.Plate, err)
						totalErrors++
						continue
					}
					inserted++
				}

				fmt.Printf("  ✓ Imported %d vehicle(s)\n", inserted)
				totalRecords += inserted
			}

			fmt.Printf("\nTotal: %d vehicles imported", totalRecords)
			if totalErrors > 0 {
				fmt.Printf(", %d errors", totalErrors)
			}
			fmt.Println()

			return nil
		},
	}
	importCmd.Flags().StringVarP(&format, "format", "f", "csv", "File format (csv, json)")
	importCmd.Flags().BoolVarP(&validate, "validate", "v", true, "Validate records before inserting")

	var serviceOdo int
	var serviceDate string

	serviceCmd := &cobra.Command{
		Use:   "service [plate]",
		Short: "Record a completed service on a vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			if serviceDate == "" {
				serviceDate = time.Now().Format("2006-01-02")
			}
			if _, err := time.Parse("2006-01-02", serviceDate); err != nil {
				return fmt.Errorf("invalid date (use YYYY-MM-DD): %w", err)
			}

			if err := database.UpdateVehicleService(args[0], serviceOdo, serviceDate); err != nil {
				return fmt.Errorf("error recording service: %w", err)
			}
			fmt.Printf("✓ Service recorded for %s at %d km on %s\n",
				models.NormalizePlate(args[0]), serviceOdo, serviceDate)
			return nil
		},
	}
	serviceCmd.Flags().IntVar(&serviceOdo, "odo", 0, "Odometer reading")
	serviceCmd.Flags().StringVar(&serviceDate, "date", "", "Service date (YYYY-MM-DD, default today)")

	cmd.AddCommand(listCmd, addCmd, importCmd, serviceCmd)
	return cmd
}

// rulesCmd shows and edits the reminder rules
func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Reminder rule commands",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active reminder rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			rules, err := database.LoadRules()
			if err != nil {
				return fmt.Errorf("error loading rules: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rules)
		},
	}

	var km, days, lead int
	var template, discount string

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Update the reminder rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			rules, err := database.LoadRules()
			if err != nil {
				return fmt.Errorf("error loading rules: %w", err)
			}

			if cmd.Flags().Changed("km") {
				rules.DistanceIntervalKm = km
			}
			if cmd.Flags().Changed("days") {
				rules.TimeIntervalDays = days
			}
			if cmd.Flags().Changed("lead") {
				rules.LeadDays = lead
			}
			if cmd.Flags().Changed("template") {
				rules.Template = template
			}
			if cmd.Flags().Changed("discount") {
				rules.DiscountText = discount
			}

			if err := database.SaveRules(rules); err != nil {
				return fmt.Errorf("error saving rules: %w", err)
			}
			fmt.Println("✓ Rules saved")
			return nil
		},
	}
	setCmd.Flags().IntVar(&km, "km", 0, "Distance interval in km")
	setCmd.Flags().IntVar(&days, "days", 0, "Time interval in days")
	setCmd.Flags().IntVar(&lead, "lead", 0, "Lead time in days")
	setCmd.Flags().StringVar(&template, "template", "", "Message template ({plate}, {lastOdo}, {lastDate}, {discount})")
	setCmd.Flags().StringVar(&discount, "discount", "", "Discount text")

	cmd.AddCommand(showCmd, setCmd)
	return cmd
}

// seedCmd creates sample vehicles for trying the workflow
func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create sample vehicle data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initDB(); err != nil {
				return fmt.Errorf("database error: %w", err)
			}
			defer database.Close()

			recent := time.Now().AddDate(0, 0, -30).Format("2006-01-02")
			dueSoon := time.Now().AddDate(0, 0, -175).Format("2006-01-02")
			overdue := time.Now().AddDate(0, 0, -400).Format("2006-01-02")

			samples := []models.Vehicle{
				{Plate: "AEL-123", OwnerName: "Usman Ali", Phone: "+92 300 0000001", Make: "Toyota", Model: "Corolla", LastOdo: intPtr(42000), LastServiceDate: &recent},
				{Plate: "ABC-321", OwnerName: "Hassan Raza", Phone: "+92 300 0000002", Make: "Honda", Model: "Civic", LastOdo: intPtr(27500), LastServiceDate: &dueSoon},
				{Plate: "LEA-909", OwnerName: "Ayesha Khan", Phone: "+92 300 0000003", Make: "Suzuki", Model: "Alto", LastOdo: intPtr(63000), LastServiceDate: &overdue},
				{Plate: "KHI-777", OwnerName: "Bilal Ahmed", Phone: "+92 300 0000004", Make: "Toyota", Model: "Yaris"},
			}

			created := 0
			for i := range samples {
				if err := database.InsertVehicle(&samples[i]); err != nil {
					fmt.Printf("  Warning: %s: %v\n", samples[i].Plate, err)
					continue
				}
				created++
			}

			fmt.Printf("✓ Created %d sample vehicle(s)\n", created)
			fmt.Println("Run 'workshop-reminders generate' to build the reminder queue.")
			return nil
		},
	}
}

func intPtr(v int) *int {
	return &v
}
