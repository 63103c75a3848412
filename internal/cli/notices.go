package cli

import (
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-checkout-service/internal/config"
	redisstore "quiz-checkout-service/internal/infra/redis"
)

// NewNoticesCmd prints the confirmation notices waiting in the redis outbox.
func NewNoticesCmd(configPath *string) *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "notices",
		Short: "List pending payment confirmation notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return fmt.Errorf("redis addr not configured; notices are only queued in redis")
			}
			client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			defer client.Close()

			pending, err := redisstore.NewNoticeQueue(client).Pending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pending)
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 20, "maximum number of notices to print, newest first")
	return cmd
}
