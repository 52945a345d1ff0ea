package benchmarks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// RedisRecordsCommand lists the episode lists recorded with --redis and their lengths
func RedisRecordsCommand() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "redis-records",
		Short: "List the episodes recorded in redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := redisAddr
			if addr == "" {
				addr = "127.0.0.1:6379"
			}
			cli := redis.NewClient(&redis.Options{
				Addr: addr,
			})
			defer cli.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			keys := make([]string, 0)
			iter := cli.Scan(ctx, 0, prefix+":*", 100).Iterator()
			for iter.Next(ctx) {
				keys = append(keys, iter.Val())
			}
			if err := iter.Err(); err != nil {
				return err
			}
			sort.Strings(keys)
			for _, key := range keys {
				n, err := cli.LLen(ctx, key).Result()
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d episodes\n", key, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "taxi-rl", "Key prefix of the recorded lists")
	return cmd
}
