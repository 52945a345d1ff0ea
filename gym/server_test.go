package gym

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/zeu5/taxi-rl/rl"
	"github.com/zeu5/taxi-rl/taxi"
)

func newTestServer() (*httptest.Server, *Client) {
	ts := httptest.NewServer(NewServer("", nil).Handler())
	return ts, NewClientWithHTTP(ts.URL, ts.Client())
}

func TestServerContract(t *testing.T) {
	ts, client := newTestServer()
	defer ts.Close()
	ctx := context.Background()

	Convey("Given a gym server", t, func() {
		env, err := client.Make(ctx, "Taxi-v3", 7)
		So(err, ShouldBeNil)
		So(env.StateCount(), ShouldEqual, taxi.NumStates)
		So(env.ActionCount(), ShouldEqual, taxi.NumActions)

		Convey("The instance is listed", func() {
			instances, err := client.List(ctx)
			So(err, ShouldBeNil)
			So(instances[env.ID], ShouldEqual, "Taxi-v3")
		})

		Convey("Reset and step return valid observations", func() {
			state, err := env.Reset(ctx)
			So(err, ShouldBeNil)
			So(state, ShouldBeBetweenOrEqual, 0, taxi.NumStates-1)

			res, err := env.Step(ctx, int(taxi.Pickup))
			So(err, ShouldBeNil)
			So(res.State, ShouldBeBetweenOrEqual, 0, taxi.NumStates-1)
			So(res.Reward, ShouldBeIn, []float64{taxi.RewardStep, taxi.RewardPenalty})
		})

		Convey("Sampling stays inside the action space", func() {
			for i := 0; i < 20; i++ {
				a, err := env.SampleAction(ctx)
				So(err, ShouldBeNil)
				member, err := env.Contains(ctx, a)
				So(err, ShouldBeNil)
				So(member, ShouldBeTrue)
			}
			member, err := env.Contains(ctx, taxi.NumActions)
			So(err, ShouldBeNil)
			So(member, ShouldBeFalse)
		})

		Convey("Invalid actions are rejected", func() {
			_, err := env.Reset(ctx)
			So(err, ShouldBeNil)
			_, err = env.Step(ctx, taxi.NumActions)
			So(errors.Is(err, ErrRemote), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "400")
		})

		Convey("Closing removes the instance", func() {
			So(env.Close(ctx), ShouldBeNil)
			instances, err := client.List(ctx)
			So(err, ShouldBeNil)
			So(instances, ShouldNotContainKey, env.ID)

			_, err = env.Reset(ctx)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "404")
		})
	})
}

func TestServerErrors(t *testing.T) {
	ts, client := newTestServer()
	defer ts.Close()
	ctx := context.Background()

	Convey("Given a gym server", t, func() {
		Convey("Unknown environment ids are a bad request", func() {
			_, err := client.Make(ctx, "CartPole-v1", 0)
			So(errors.Is(err, ErrRemote), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "400")
		})

		Convey("Unknown instances are not found", func() {
			resp, err := ts.Client().Post(ts.URL+"/v1/envs/missing/reset/", "application/json", nil)
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			body, _ := io.ReadAll(resp.Body)
			So(string(body), ShouldContainSubstring, "message")
		})

		Convey("Malformed bodies are a bad request", func() {
			resp, err := ts.Client().Post(ts.URL+"/v1/envs/", "application/json", bytes.NewBufferString("{"))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Stepping before reset is a bad request", func() {
			env, err := client.Make(ctx, "Taxi-v3", 1)
			So(err, ShouldBeNil)
			_, err = env.Step(ctx, 0)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "400")
		})
	})
}

func TestMetrics(t *testing.T) {
	ts, client := newTestServer()
	defer ts.Close()
	ctx := context.Background()

	env, err := client.Make(ctx, "Taxi-v3", 3)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	env.Reset(ctx)
	env.Step(ctx, int(taxi.North))

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"gym_requests_total", "gym_steps_total", "gym_instances 1"} {
		if !bytes.Contains(body, []byte(name)) {
			t.Errorf("expected %s in the metrics output", name)
		}
	}
}

func TestSmokeTest(t *testing.T) {
	ts, client := newTestServer()
	defer ts.Close()
	if err := SmokeTest(context.Background(), client, []string{"Taxi-v3", "Taxi-v3-unlimited"}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	instances, _ := client.List(context.Background())
	if len(instances) != 0 {
		t.Errorf("expected the smoke test to close its instances, got %v", instances)
	}
}

func TestTrainRemote(t *testing.T) {
	ts, client := newTestServer()
	defer ts.Close()
	ctx := context.Background()

	env, err := client.Make(ctx, "Taxi-v3", 11)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer env.Close(ctx)

	trainer, err := rl.NewTrainer(env, rl.DefaultHyperparameters(), rl.WithSeed(11), rl.WithProgress(0, nil))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	stats, err := trainer.Train(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(stats) != 5 {
		t.Fatalf("expected 5 episodes, got %d", len(stats))
	}
	for _, s := range stats {
		if !s.Done && !s.Truncated {
			t.Errorf("expected episode %d to end with the environment, got %+v", s.Episode, s)
		}
	}
	if trainer.Table().IsZero() {
		t.Errorf("expected the table to be updated")
	}
}

// failingStepEnv wraps a taxi environment without exposing Seed and fails every step
type failingStepEnv struct {
	env *taxi.Environment
}

func (f *failingStepEnv) Reset(ctx context.Context) (int, error) { return f.env.Reset(ctx) }

func (f *failingStepEnv) Step(context.Context, int) (rl.StepResult, error) {
	return rl.StepResult{}, errors.New("step failed")
}

func (f *failingStepEnv) SampleAction(ctx context.Context) (int, error) {
	return f.env.SampleAction(ctx)
}

func (f *failingStepEnv) StateCount() int  { return taxi.NumStates }
func (f *failingStepEnv) ActionCount() int { return taxi.NumActions }

func newFailingRegistry() *Registry {
	registry := NewRegistry()
	registry.Register("Failing-v0", func(seed uint64) rl.Environment {
		return &failingStepEnv{env: taxi.NewEnvironment(seed)}
	})
	return registry
}

func TestResetWithSeed(t *testing.T) {
	ctx := context.Background()

	Convey("Given a gym server", t, func() {
		ts := httptest.NewServer(NewServer("", newFailingRegistry()).Handler())
		defer ts.Close()
		client := NewClientWithHTTP(ts.URL, ts.Client())

		Convey("Instances reseeded alike reset alike", func() {
			a, err := client.Make(ctx, "Taxi-v3", 1)
			So(err, ShouldBeNil)
			b, err := client.Make(ctx, "Taxi-v3", 2)
			So(err, ShouldBeNil)
			for i := 0; i < 5; i++ {
				sa, err := a.ResetWithSeed(ctx, 42)
				So(err, ShouldBeNil)
				sb, err := b.ResetWithSeed(ctx, 42)
				So(err, ShouldBeNil)
				So(sa, ShouldEqual, sb)
			}
		})

		Convey("Environments that cannot be reseeded reject a seed", func() {
			env, err := client.Make(ctx, "Failing-v0", 1)
			So(err, ShouldBeNil)
			_, err = env.ResetWithSeed(ctx, 42)
			So(errors.Is(err, ErrRemote), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "400")
			_, err = env.Reset(ctx)
			So(err, ShouldBeNil)
		})

		Convey("Malformed reset bodies are a bad request", func() {
			env, err := client.Make(ctx, "Taxi-v3", 1)
			So(err, ShouldBeNil)
			resp, err := ts.Client().Post(ts.URL+"/v1/envs/"+env.ID+"/reset/", "application/json", bytes.NewBufferString(`{"seed": "x"}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestMakeClosesUnusableInstances(t *testing.T) {
	registry := NewRegistry()
	handler := NewServer("", registry).Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "observation_space") {
			http.Error(w, `{"message": "unavailable"}`, http.StatusInternalServerError)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	defer ts.Close()
	client := NewClientWithHTTP(ts.URL, ts.Client())

	if _, err := client.Make(context.Background(), "Taxi-v3", 1); !errors.Is(err, ErrRemote) {
		t.Fatalf("expected the space fetch to fail, got %v", err)
	}
	if instances := registry.Instances(); len(instances) != 0 {
		t.Errorf("expected the instance to be closed, got %v", instances)
	}
}

func TestFailedSmokeTestCloses(t *testing.T) {
	registry := newFailingRegistry()
	ts := httptest.NewServer(NewServer("", registry).Handler())
	defer ts.Close()
	client := NewClientWithHTTP(ts.URL, ts.Client())

	if err := SmokeTest(context.Background(), client, []string{"Failing-v0"}); err == nil {
		t.Fatalf("expected the smoke test to fail")
	}
	if instances := registry.Instances(); len(instances) != 0 {
		t.Errorf("expected the failed smoke test to close its instance, got %v", instances)
	}
}
