package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/54b3r/eatwhat-go/internal/logging"
	"github.com/54b3r/eatwhat-go/internal/recipe"
)

// NewRecipeCmd constructs the `eatwhat recipe` command group for catalog
// maintenance.
func NewRecipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipe",
		Short: "Maintain the recipe catalog",
	}
	cmd.AddCommand(newRecipeAddCmd())
	return cmd
}

func newRecipeAddCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add recipes to the catalog from JSON",
		Long: `Add one recipe object, or an array of them, read from --file or stdin
("-"). Ids are generated when absent. Run "eatwhat index" afterwards to
make the new recipes searchable.

Examples:
  eatwhat recipe add --file recipes.json
  cat mapo.json | eatwhat recipe add --file -`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("recipe add: %w", err)
				}
				defer f.Close()
				in = f
			}
			recs, err := readRecipes(in)
			if err != nil {
				return fmt.Errorf("recipe add: %w", err)
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc := newServices(log)
			defer svc.Close()
			if err := svc.openStore(); err != nil {
				return fmt.Errorf("recipe add: %w", err)
			}
			for i := range recs {
				if err := svc.store.CreateRecipe(ctx, &recs[i]); err != nil {
					return fmt.Errorf("recipe add: %q: %w", recs[i].Name, err)
				}
			}
			total, err := svc.store.CountRecipes(ctx)
			if err != nil {
				return fmt.Errorf("recipe add: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "added %d recipes, catalog now holds %d\n", len(recs), total)
			return printJSON(cmd.OutOrStdout(), recs)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", `JSON file to read, or "-" for stdin`)

	return cmd
}

// readRecipes decodes a single recipe or an array of recipes. Every recipe
// needs a name.
func readRecipes(r io.Reader) ([]recipe.Record, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("no recipes in input")
	}

	var recs []recipe.Record
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal([]byte(trimmed), &recs)
	} else {
		var one recipe.Record
		err = json.Unmarshal([]byte(trimmed), &one)
		recs = []recipe.Record{one}
	}
	if err != nil {
		return nil, fmt.Errorf("decode recipes: %w", err)
	}
	for i, rec := range recs {
		if strings.TrimSpace(rec.Name) == "" {
			return nil, fmt.Errorf("recipe %d has no name", i)
		}
	}
	return recs, nil
}
