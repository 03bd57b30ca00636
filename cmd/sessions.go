package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"voxhub/pkg/config"
	"voxhub/pkg/session"
	"voxhub/pkg/storage"

	"github.com/spf13/cobra"
)

// sessionsCmd lists every registered session from the local database.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List registered sessions",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		ctx := context.Background()

		db, err := storage.Open(cfg.Database.Path)
		if err != nil {
			fmt.Printf("failed to open database: %v\n", err)
			return
		}
		defer db.Close()

		store, err := session.NewSQLStore(ctx, db)
		if err != nil {
			fmt.Printf("failed to initialize session store: %v\n", err)
			return
		}

		sessions, err := store.List(ctx)
		if err != nil {
			fmt.Printf("failed to list sessions: %v\n", err)
			return
		}

		if len(sessions) == 0 {
			fmt.Println("no sessions registered")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDRIVER\tALIAS\tCREATED")
		for _, sess := range sessions {
			alias := sess.Alias
			if alias == "" {
				alias = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", sess.ID, sess.IODriver, alias, sess.CreatedAt.Format("2006-01-02 15:04"))
		}
		_ = w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
