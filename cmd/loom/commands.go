package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/caldew/loom/internal/catalog"
	"github.com/caldew/loom/internal/config"
	"github.com/caldew/loom/internal/ingest"
	"github.com/caldew/loom/internal/warehouse"
	"github.com/caldew/loom/internal/workflow"
	"github.com/caldew/loom/internal/workspace"
)

// schemaSampleRows caps how many CSV rows are scanned for type inference.
const schemaSampleRows = 200

// --- group ---

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage feature groups",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a feature group and wait until it is usable",
	Long: `Create a feature group and wait until it is usable.

The schema is inferred from a sample of --data, or loaded from --schema.

Examples:
  loom group create transactions --data transactions.csv --id transaction_id
  loom group create identity --schema identity-schema.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		dataPath, _ := cmd.Flags().GetString("data")
		schemaPath, _ := cmd.Flags().GetString("schema")
		id, _ := cmd.Flags().GetString("id")
		eventTime, _ := cmd.Flags().GetString("event-time")
		description, _ := cmd.Flags().GetString("description")
		offlineOnly, _ := cmd.Flags().GetBool("offline-only")

		var schema catalog.Schema
		switch {
		case schemaPath != "":
			f, err := os.Open(schemaPath)
			if err != nil {
				return fmt.Errorf("opening schema file: %w", err)
			}
			schema, err = catalog.LoadSchema(f)
			f.Close()
			if err != nil {
				return err
			}
		case dataPath != "":
			if id == "" {
				return fmt.Errorf("--id is required when inferring the schema from --data")
			}
			var err error
			schema, err = inferSchemaFromCSV(dataPath, id, eventTime)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("one of --data or --schema is required")
		}

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		printStep("Creating feature group %s (%d features)", name, len(schema.Features))
		fg, err := app.runner.ProvisionGroup(cmd.Context(), catalog.CreateGroupInput{
			Name:          name,
			Description:   description,
			Schema:        schema,
			OnlineEnabled: !offlineOnly,
		})
		if err != nil {
			return err
		}

		printSuccess("Feature group %s is ready", fg.Name)
		printStatus("Offline table", "%s", fg.OfflineTable)
		if fg.OfflineLocation != "" {
			printStatus("Offline location", "%s", fg.OfflineLocation)
		}
		return nil
	},
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List feature groups on the platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		groups, err := app.catalog.ListGroups(cmd.Context())
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			fmt.Println("No feature groups found.")
			return nil
		}
		for _, fg := range groups {
			fmt.Printf("%s  %s  %d features\n",
				colorize(ansiBold, fg.Name),
				fg.Status,
				len(fg.Schema.Features),
			)
		}
		return nil
	},
}

var groupDescribeCmd = &cobra.Command{
	Use:   "describe <name>",
	Short: "Show a feature group as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		fg, err := app.catalog.DescribeGroup(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(fg)
	},
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a feature group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		name := args[0]
		if err := app.catalog.DeleteGroup(cmd.Context(), name); err != nil {
			return err
		}
		if err := app.runner.Waiter.Wait(cmd.Context(), "feature group "+name, app.catalog.GroupDeleted(name)); err != nil {
			return err
		}
		if err := app.store.DeleteResource(workspace.KindFeatureGroup, name); err != nil {
			printWarning("clearing ledger row for %s: %v", name, err)
		}
		printSuccess("Deleted feature group %s", name)
		return nil
	},
}

func init() {
	groupCreateCmd.Flags().String("data", "", "CSV file to infer the schema from")
	groupCreateCmd.Flags().String("schema", "", "JSON schema file (overrides inference)")
	groupCreateCmd.Flags().String("id", "", "record identifier column")
	groupCreateCmd.Flags().String("event-time", "event_time", "event time column (appended when absent from the data)")
	groupCreateCmd.Flags().String("description", "", "feature group description")
	groupCreateCmd.Flags().Bool("offline-only", false, "skip the online store")

	groupCmd.AddCommand(groupCreateCmd)
	groupCmd.AddCommand(groupListCmd)
	groupCmd.AddCommand(groupDescribeCmd)
	groupCmd.AddCommand(groupDeleteCmd)
}

// inferSchemaFromCSV reads the header and a bounded sample of rows.
func inferSchemaFromCSV(path, id, eventTime string) (catalog.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return catalog.Schema{}, fmt.Errorf("opening data file: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err == io.EOF {
		return catalog.Schema{}, fmt.Errorf("%s has no header row", path)
	}
	if err != nil {
		return catalog.Schema{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var sample [][]string
	for len(sample) < schemaSampleRows {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return catalog.Schema{}, fmt.Errorf("reading %s: %w", path, err)
		}
		sample = append(sample, row)
	}

	return catalog.InferSchema(header, sample, id, eventTime)
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <group> <file.csv>",
	Short: "Bulk-ingest a CSV file into a feature group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		group, path := args[0], args[1]
		workers, _ := cmd.Flags().GetInt("workers")

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if workers <= 0 {
			workers = app.cfg.Ingest.Workers
		}

		fg, err := app.catalog.DescribeGroup(cmd.Context(), group)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()

		printStep("Ingesting %s into %s (%d workers)", path, group, workers)
		ing := &ingest.Ingestor{Catalog: app.catalog, Workers: workers}
		res, err := ing.IngestCSV(cmd.Context(), fg, f)
		if err != nil {
			return err
		}

		printSuccess("Ingested %d records in %s", res.Records, res.Elapsed.Round(time.Millisecond))
		return nil
	},
}

func init() {
	ingestCmd.Flags().Int("workers", 0, "concurrent record puts (default: ingest.workers from config)")
}

// --- record ---

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Read and write online store records",
}

var recordGetCmd = &cobra.Command{
	Use:   "get <group> <id>",
	Short: "Fetch the latest record for an identifier",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		rec, err := app.catalog.GetRecord(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		for _, fv := range rec {
			fmt.Printf("%s\t%s\n", colorize(ansiBold, fv.Name), fv.Value)
		}
		return nil
	},
}

var recordPutCmd = &cobra.Command{
	Use:   "put <group> <field>=<value> ...",
	Short: "Write a single record",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		group := args[0]

		rec := make(catalog.Record, 0, len(args)-1)
		for _, arg := range args[1:] {
			name, value, ok := strings.Cut(arg, "=")
			if !ok || name == "" {
				return fmt.Errorf("expected field=value, got %q", arg)
			}
			rec = append(rec, catalog.FeatureValue{Name: name, Value: value})
		}

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.catalog.PutRecord(cmd.Context(), group, rec); err != nil {
			return err
		}
		printSuccess("Put record into %s", group)
		return nil
	},
}

func init() {
	recordCmd.AddCommand(recordGetCmd)
	recordCmd.AddCommand(recordPutCmd)
}

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a SQL query against the offline store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asCSV, _ := cmd.Flags().GetBool("csv")

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		rs, err := app.warehouse.Run(cmd.Context(), app.runner.Waiter, args[0])
		if err != nil {
			return err
		}
		return writeResultSet(os.Stdout, rs, asCSV)
	},
}

func init() {
	queryCmd.Flags().Bool("csv", false, "emit CSV instead of a table")
}

func writeResultSet(w io.Writer, rs *warehouse.ResultSet, asCSV bool) error {
	if asCSV {
		cw := csv.NewWriter(w)
		if err := cw.Write(rs.Columns); err != nil {
			return err
		}
		for _, row := range rs.Rows {
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}

	fmt.Fprintln(w, strings.Join(rs.Columns, "\t"))
	for _, row := range rs.Rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	fmt.Fprintf(w, "(%d rows)\n", len(rs.Rows))
	return nil
}

// --- dataset ---

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Build and inspect training datasets",
}

var datasetBuildCmd = &cobra.Command{
	Use:   "build <name>",
	Short: "Join two feature groups offline and write the training CSV",
	Long: `Join two feature groups offline and write the training CSV.

The artifact has the target column first, then the features, with no header
row. The column order is recorded so serving assembles vectors the same way.

Example:
  loom dataset build fraud-v1 --left transactions --right identity \
    --target is_fraud --features amount,card_age,email_domain_score`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		left, _ := cmd.Flags().GetString("left")
		right, _ := cmd.Flags().GetString("right")
		joinOn, _ := cmd.Flags().GetString("on")
		target, _ := cmd.Flags().GetString("target")
		featuresStr, _ := cmd.Flags().GetString("features")
		dir, _ := cmd.Flags().GetString("out")

		if left == "" || right == "" {
			return fmt.Errorf("--left and --right feature groups are required")
		}

		var features []string
		if featuresStr != "" {
			features = strings.Split(featuresStr, ",")
			for i := range features {
				features[i] = strings.TrimSpace(features[i])
			}
		}

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if dir == "" {
			dir = app.cfg.Dataset.Dir
		}

		m, err := app.runner.BuildDataset(cmd.Context(), workflow.DatasetSpec{
			Name:     args[0],
			Left:     left,
			Right:    right,
			JoinOn:   joinOn,
			Target:   target,
			Features: features,
			Dir:      dir,
		})
		if err != nil {
			return err
		}

		printSuccess("Built dataset %s (%d rows)", m.Name, m.Rows)
		printStatus("Artifact", "%s", m.Path)
		printStatus("Staged at", "%s", m.ArtifactURI)
		printStatus("Columns", "%s", strings.Join(m.Columns(), ","))
		return nil
	},
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		manifests, err := app.store.ListDatasets()
		if err != nil {
			return err
		}
		if len(manifests) == 0 {
			fmt.Println("No datasets built yet.")
			return nil
		}
		for _, m := range manifests {
			fmt.Printf("%s  %d rows  target=%s  %s\n",
				colorize(ansiBold, m.Name),
				m.Rows,
				m.Target,
				m.CreatedAt.Format("2006-01-02 15:04"),
			)
		}
		return nil
	},
}

func init() {
	datasetBuildCmd.Flags().String("left", "", "left feature group (its identifier drives the join)")
	datasetBuildCmd.Flags().String("right", "", "right feature group")
	datasetBuildCmd.Flags().String("on", "", "join column (default: the left group's record identifier)")
	datasetBuildCmd.Flags().String("target", "", "target column, written first in the artifact")
	datasetBuildCmd.Flags().String("features", "", "comma-separated feature columns in training order")
	datasetBuildCmd.Flags().String("out", "", "output directory (default: dataset.dir from config)")

	datasetCmd.AddCommand(datasetBuildCmd)
	datasetCmd.AddCommand(datasetListCmd)
}

// --- train ---

var trainCmd = &cobra.Command{
	Use:   "train <job-name>",
	Short: "Train a model on a built dataset and wait for completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		datasetName, _ := cmd.Flags().GetString("dataset")
		algorithm, _ := cmd.Flags().GetString("algorithm")
		hpArgs, _ := cmd.Flags().GetStringArray("hp")

		hyperparameters := make(map[string]string, len(hpArgs))
		for _, arg := range hpArgs {
			key, value, ok := strings.Cut(arg, "=")
			if !ok || key == "" {
				return fmt.Errorf("expected --hp key=value, got %q", arg)
			}
			hyperparameters[key] = value
		}

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		job, err := app.runner.Train(cmd.Context(), workflow.TrainSpec{
			JobName:         args[0],
			Dataset:         datasetName,
			Algorithm:       algorithm,
			Hyperparameters: hyperparameters,
		})
		if err != nil {
			return err
		}

		printSuccess("Training job %s completed", job.Name)
		printStatus("Model", "%s", job.ModelURI)
		return nil
	},
}

func init() {
	trainCmd.Flags().String("dataset", "", "dataset manifest name (default: the most recent)")
	trainCmd.Flags().String("algorithm", "xgboost", "training algorithm")
	trainCmd.Flags().StringArray("hp", nil, "hyperparameter key=value (repeatable)")
}

// --- deploy ---

var deployCmd = &cobra.Command{
	Use:   "deploy <endpoint>",
	Short: "Deploy a trained model to an endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobName, _ := cmd.Flags().GetString("job")
		if jobName == "" {
			return fmt.Errorf("--job is required")
		}

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ep, err := app.runner.Deploy(cmd.Context(), args[0], jobName)
		if err != nil {
			return err
		}

		printSuccess("Endpoint %s is in service", ep.Name)
		return nil
	},
}

func init() {
	deployCmd.Flags().String("job", "", "training job whose model to deploy")
}

// --- predict ---

var predictCmd = &cobra.Command{
	Use:   "predict <id>",
	Short: "Assemble the feature vector for an identifier and score it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, _ := cmd.Flags().GetString("endpoint")
		datasetName, _ := cmd.Flags().GetString("dataset")
		groupsStr, _ := cmd.Flags().GetString("groups")

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		groups := app.cfg.Score.Groups
		if groupsStr != "" {
			groups = strings.Split(groupsStr, ",")
			for i := range groups {
				groups[i] = strings.TrimSpace(groups[i])
			}
		}
		if endpoint == "" {
			endpoint = app.cfg.Score.Endpoint
		}
		if datasetName == "" {
			datasetName = app.cfg.Score.Dataset
		}

		result, err := app.runner.Score(cmd.Context(), workflow.ScoreInput{
			ID:       args[0],
			Groups:   groups,
			Endpoint: endpoint,
			Dataset:  datasetName,
		})
		if err != nil {
			return err
		}

		for i, name := range result.Names {
			printStatus(name, "%s", result.Values[i])
		}
		fmt.Printf("score: %.6f\n", result.Score)
		if result.Score >= 0.5 {
			printWarning("Flagged as fraudulent")
		} else {
			printSuccess("Not flagged")
		}
		return nil
	},
}

func init() {
	predictCmd.Flags().String("endpoint", "", "endpoint to invoke (default: score.endpoint from config)")
	predictCmd.Flags().String("dataset", "", "dataset manifest naming the feature order (default: the most recent)")
	predictCmd.Flags().String("groups", "", "comma-separated feature groups in lookup priority order")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the workspace ledger and platform liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if app.api.Healthy(cmd.Context()) {
			printStatus("Platform", "up at %s", app.cfg.Platform.BaseURL)
		} else {
			printStatus("Platform", "unreachable at %s", app.cfg.Platform.BaseURL)
		}

		kinds := []struct {
			kind  workspace.ResourceKind
			label string
		}{
			{workspace.KindFeatureGroup, "Feature groups"},
			{workspace.KindTrainingJob, "Training jobs"},
			{workspace.KindEndpoint, "Endpoints"},
		}
		for _, k := range kinds {
			resources, err := app.store.ListResources(k.kind)
			if err != nil {
				return err
			}
			printStatus(k.label, "%d", len(resources))
			for _, r := range resources {
				fmt.Fprintf(feedbackW, "    %s  %s\n", r.Name, r.Status)
			}
		}

		manifests, err := app.store.ListDatasets()
		if err != nil {
			return err
		}
		printStatus("Datasets", "%d", len(manifests))
		printStatus("Data dir", "%s", app.cfg.Workspace.DataDir)
		return nil
	},
}

// --- teardown ---

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Destroy every remote resource recorded in the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			printWarning("This deletes every endpoint and feature group loom created. Use --yes to proceed.")
			return nil
		}

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		res, err := app.runner.Teardown(cmd.Context())
		if err != nil {
			return err
		}

		for _, f := range res.Failures {
			printError("%s: %v", f.Resource, f.Err)
		}
		if len(res.Failures) > 0 {
			return fmt.Errorf("%d of %d resources could not be destroyed", len(res.Failures), len(res.Failures)+len(res.Removed))
		}

		printSuccess("Destroyed %d resources", len(res.Removed))
		return nil
	},
}

func init() {
	teardownCmd.Flags().Bool("yes", false, "confirm the teardown")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Resolve(configPath))
		if err != nil {
			return err
		}

		for _, k := range cfg.ShowAll() {
			fmt.Printf("  %s = %s\n", colorize(ansiBold, k.Key), k.Value)
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show which config file is in effect",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.Resolve(configPath)
		if path == "" {
			fmt.Println("(none; built-in defaults plus LOOM_* environment)")
			return nil
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}
