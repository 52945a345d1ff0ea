package gym

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"
)

// SmokeTest creates an instance of every env id, exercises each endpoint once and closes it
func SmokeTest(ctx context.Context, client *Client, envIDs []string) error {
	for _, envID := range envIDs {
		if err := smoke(ctx, client, envID); err != nil {
			return fmt.Errorf("smoke test of %s: %w", envID, err)
		}
		klog.InfoS("Smoke test passed", "env_id", envID)
	}
	return nil
}

func smoke(ctx context.Context, client *Client, envID string) (err error) {
	env, err := client.Make(ctx, envID, 0)
	if err != nil {
		return err
	}
	defer func() {
		cerr := env.Close(context.WithoutCancel(ctx))
		if err == nil {
			err = cerr
		} else if cerr != nil {
			klog.ErrorS(cerr, "Closing instance after a failed smoke test", "instance_id", env.ID)
		}
	}()
	instances, err := client.List(ctx)
	if err != nil {
		return err
	}
	if instances[env.ID] != envID {
		return fmt.Errorf("instance %s missing from the listing", env.ID)
	}
	state, err := env.Reset(ctx)
	if err != nil {
		return err
	}
	if state < 0 || state >= env.StateCount() {
		return fmt.Errorf("initial observation %d outside [0, %d)", state, env.StateCount())
	}
	action, err := env.SampleAction(ctx)
	if err != nil {
		return err
	}
	member, err := env.Contains(ctx, action)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("sampled action %d not contained in the action space", action)
	}
	res, err := env.Step(ctx, action)
	if err != nil {
		return err
	}
	if res.State < 0 || res.State >= env.StateCount() {
		return fmt.Errorf("observation %d outside [0, %d)", res.State, env.StateCount())
	}
	return nil
}
