package gym

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zeu5/taxi-rl/rl"
)

// ErrRemote is returned when the server responds with an error status
var ErrRemote = errors.New("gym server error")

// Client for the gym http api
type Client struct {
	base   string
	client *http.Client
}

func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{
		base: strings.TrimSuffix(addr, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 5 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: 5 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				MaxIdleConnsPerHost:   4,
			},
		},
	}
}

// NewClientWithHTTP uses the given http client, for example one from httptest
func NewClientWithHTTP(addr string, client *http.Client) *Client {
	c := NewClient(addr)
	c.client = client
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewBuffer(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		msg := struct {
			Message string `json:"message"`
		}{}
		if json.Unmarshal(bs, &msg) != nil || msg.Message == "" {
			msg.Message = string(bs)
		}
		return fmt.Errorf("%w: %s %s: %d %s", ErrRemote, method, path, resp.StatusCode, msg.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bs, out); err != nil {
		return fmt.Errorf("unmarshaling response of %s: %w", path, err)
	}
	return nil
}

// Space of a discrete environment
type Space struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

// List the live instances, instance id to environment id
func (c *Client) List(ctx context.Context) (map[string]string, error) {
	out := struct {
		AllEnvs map[string]string `json:"all_envs"`
	}{}
	if err := c.do(ctx, http.MethodGet, "/v1/envs/", nil, &out); err != nil {
		return nil, err
	}
	return out.AllEnvs, nil
}

// Make creates a remote instance of envID and fetches its spaces
func (c *Client) Make(ctx context.Context, envID string, seed uint64) (*RemoteEnv, error) {
	out := struct {
		InstanceID string `json:"instance_id"`
	}{}
	if err := c.do(ctx, http.MethodPost, "/v1/envs/", createRequest{EnvID: envID, Seed: seed}, &out); err != nil {
		return nil, err
	}
	e := &RemoteEnv{ID: out.InstanceID, EnvID: envID, client: c}
	if err := e.fetchSpaces(ctx); err != nil {
		// the instance is unusable, release it even if ctx is done
		if cerr := e.Close(context.WithoutCancel(ctx)); cerr != nil {
			return nil, errors.Join(err, fmt.Errorf("closing %s: %w", e.ID, cerr))
		}
		return nil, err
	}
	return e, nil
}

func (e *RemoteEnv) fetchSpaces(ctx context.Context) error {
	actions, err := e.client.space(ctx, e.ID, "action_space")
	if err != nil {
		return err
	}
	observations, err := e.client.space(ctx, e.ID, "observation_space")
	if err != nil {
		return err
	}
	if actions.Name != "Discrete" || observations.Name != "Discrete" {
		return fmt.Errorf("%w: spaces %s and %s are not discrete", rl.ErrInvalidEnvironment, observations.Name, actions.Name)
	}
	e.actions = actions.N
	e.states = observations.N
	return nil
}

func (c *Client) space(ctx context.Context, id, kind string) (Space, error) {
	out := struct {
		Info Space `json:"info"`
	}{}
	err := c.do(ctx, http.MethodGet, "/v1/envs/"+id+"/"+kind+"/", nil, &out)
	return out.Info, err
}

// RemoteEnv is an environment instance living on a gym server
type RemoteEnv struct {
	ID    string
	EnvID string

	client  *Client
	states  int
	actions int
}

var _ rl.Environment = &RemoteEnv{}

func (e *RemoteEnv) StateCount() int {
	return e.states
}

func (e *RemoteEnv) ActionCount() int {
	return e.actions
}

func (e *RemoteEnv) Reset(ctx context.Context) (int, error) {
	return e.reset(ctx, nil)
}

// ResetWithSeed reseeds the remote instance before resetting it
func (e *RemoteEnv) ResetWithSeed(ctx context.Context, seed uint64) (int, error) {
	return e.reset(ctx, &resetRequest{Seed: &seed})
}

func (e *RemoteEnv) reset(ctx context.Context, req *resetRequest) (int, error) {
	out := struct {
		Observation int `json:"observation"`
	}{}
	var body interface{}
	if req != nil {
		body = req
	}
	err := e.client.do(ctx, http.MethodPost, "/v1/envs/"+e.ID+"/reset/", body, &out)
	return out.Observation, err
}

func (e *RemoteEnv) Step(ctx context.Context, action int) (rl.StepResult, error) {
	out := struct {
		Observation int     `json:"observation"`
		Reward      float64 `json:"reward"`
		Done        bool    `json:"done"`
		Truncated   bool    `json:"truncated"`
	}{}
	if err := e.client.do(ctx, http.MethodPost, "/v1/envs/"+e.ID+"/step/", stepRequest{Action: &action}, &out); err != nil {
		return rl.StepResult{}, err
	}
	return rl.StepResult{
		State:     out.Observation,
		Reward:    out.Reward,
		Done:      out.Done,
		Truncated: out.Truncated,
	}, nil
}

func (e *RemoteEnv) SampleAction(ctx context.Context) (int, error) {
	out := struct {
		Action int `json:"action"`
	}{}
	err := e.client.do(ctx, http.MethodGet, "/v1/envs/"+e.ID+"/action_space/sample", nil, &out)
	return out.Action, err
}

// Contains asks the server whether x is a valid action
func (e *RemoteEnv) Contains(ctx context.Context, x int) (bool, error) {
	out := struct {
		Member bool `json:"member"`
	}{}
	err := e.client.do(ctx, http.MethodGet, "/v1/envs/"+e.ID+"/action_space/contains/"+strconv.Itoa(x), nil, &out)
	return out.Member, err
}

func (e *RemoteEnv) Close(ctx context.Context) error {
	return e.client.do(ctx, http.MethodPost, "/v1/envs/"+e.ID+"/close/", nil, nil)
}
