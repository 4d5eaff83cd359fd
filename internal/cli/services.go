package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/vali/internal/output"
	"github.com/mrz1836/vali/internal/services"
)

// servicesCmd is the parent command for service registry operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Inspect the provider registry",
	Long: `Inspect the registry of known utility providers.

Each provider has a canonical name, a portal service ID, and the step
order used when querying balances. Custom providers can be added in the
configuration file under the "services" key.`,
}

// servicesListCmd lists all known services.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var servicesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List known utility providers",
	Long:    `List all known utility providers with their portal service IDs and aliases.`,
	Example: `  # List providers in a table
  vali services list

  # List providers as JSON
  vali services list -o json`,
	RunE: runServicesList,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	servicesCmd.GroupID = "check"
	rootCmd.AddCommand(servicesCmd)
	servicesCmd.AddCommand(servicesListCmd)
}

// ServiceResponse is the JSON shape for a registry entry.
type ServiceResponse struct {
	Name      string   `json:"name"`
	Display   string   `json:"display"`
	ServiceID int64    `json:"service_id"`
	StepOrder int      `json:"step_order"`
	Aliases   []string `json:"aliases,omitempty"`
	Custom    bool     `json:"custom,omitempty"`
}

func runServicesList(cmd *cobra.Command, _ []string) error {
	cmdCtx := GetCmdContext(cmd)

	list := cmdCtx.Registry.List()

	if cmdCtx.Fmt.IsJSON() {
		entries := make([]ServiceResponse, len(list))
		for i, svc := range list {
			entries[i] = ServiceResponse{
				Name:      svc.Name,
				Display:   svc.Display,
				ServiceID: svc.ID,
				StepOrder: svc.StepOrder,
				Aliases:   svc.Aliases,
				Custom:    svc.Custom,
			}
		}
		return writeJSON(cmd.OutOrStdout(), struct {
			Services []ServiceResponse `json:"services"`
		}{Services: entries})
	}

	outputServicesTable(cmd, list)
	return nil
}

func outputServicesTable(cmd *cobra.Command, list []services.Service) {
	w := cmd.OutOrStdout()

	table := output.NewTable("Name", "ID", "Step", "Display", "Aliases")
	table.AlignRight(1, 2)

	hasCustom := false
	for _, svc := range list {
		name := svc.Name
		if svc.Custom {
			name += " *"
			hasCustom = true
		}
		table.AddRow(name,
			strconv.FormatInt(svc.ID, 10),
			strconv.Itoa(svc.StepOrder),
			svc.Display,
			strings.Join(svc.Aliases, ", "))
	}

	if err := table.Render(w); err != nil {
		return
	}
	if hasCustom {
		outln(w, "\n* Custom provider from the configuration file")
	}
}
