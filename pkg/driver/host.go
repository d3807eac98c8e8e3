package driver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nxshell/nxshell/pkg/shellctx"
	"github.com/nxshell/nxshell/pkg/util"
)

// Request is one command sent to a serving driver, one JSON object per
// line.
type Request struct {
	ID      string                           `json:"id,omitempty"`
	Command string                           `json:"command"`
	Context *shellctx.ResourceCommandContext `json:"context"`
	Params  map[string]string                `json:"params,omitempty"`
}

// Response answers a Request with the same ID.
type Response struct {
	ID      string      `json:"id"`
	Command string      `json:"command"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type dispatchFunc func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, p map[string]string) (interface{}, error)

var dispatchTable = map[string]dispatchFunc{
	"initialize": func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, _ map[string]string) (interface{}, error) {
		return d.Initialize(ctx, cc.Init())
	},
	"get_inventory": func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, _ map[string]string) (interface{}, error) {
		return d.GetInventory(ctx, cc.AutoLoad())
	},
	"run_custom_command": func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, p map[string]string) (interface{}, error) {
		return d.RunCustomCommand(ctx, cc, p["custom_command"])
	},
	"run_custom_config_command": func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, p map[string]string) (interface{}, error) {
		return d.RunCustomConfigCommand(ctx, cc, p["custom_command"])
	},
	"apply_connectivity_changes": func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, p map[string]string) (interface{}, error) {
		return d.ApplyConnectivityChanges(ctx, cc, p["request"])
	},
	"save": func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, p map[string]string) (interface{}, error) {
		return d.Save(ctx, cc, p["folder_path"], p["configuration_type"], p["vrf_management_name"])
	},
	"restore": func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, p map[string]string) (interface{}, error) {
		return nil, d.Restore(ctx, cc, p["path"], p["configuration_type"], p["restore_method"], p["vrf_management_name"])
	},
	"orchestration_save": func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, p map[string]string) (interface{}, error) {
		return d.OrchestrationSave(ctx, cc, p["mode"], p["custom_params"])
	},
	"orchestration_restore": func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, p map[string]string) (interface{}, error) {
		return nil, d.OrchestrationRestore(ctx, cc, p["saved_artifact_info"], p["custom_params"])
	},
	"load_firmware": func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, p map[string]string) (interface{}, error) {
		return nil, d.LoadFirmware(ctx, cc, p["path"], p["vrf_management_name"])
	},
	"health_check": func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, _ map[string]string) (interface{}, error) {
		return d.HealthCheck(ctx, cc)
	},
	"shutdown": func(d *Driver, ctx context.Context, cc *shellctx.ResourceCommandContext, _ map[string]string) (interface{}, error) {
		return d.Shutdown(ctx, cc)
	},
}

func init() {
	dispatchTable["autoload"] = dispatchTable["get_inventory"]
}

// Commands lists the command names Dispatch accepts.
func Commands() []string {
	names := make([]string, 0, len(dispatchTable)+1)
	for name := range dispatchTable {
		names = append(names, name)
	}
	names = append(names, "cleanup")
	sort.Strings(names)
	return names
}

// Dispatch runs one request and builds its response. Command failures are
// reported in the response, never returned.
func (d *Driver) Dispatch(ctx context.Context, req *Request) *Response {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	resp := &Response{ID: req.ID, Command: req.Command}

	name := strings.ToLower(strings.TrimSpace(req.Command))
	var (
		result interface{}
		err    error
	)
	switch fn, ok := dispatchTable[name]; {
	case name == "cleanup":
		err = d.Cleanup()
	case !ok:
		err = fmt.Errorf("%w: unknown command %q", util.ErrNotSupported, req.Command)
	case req.Context == nil:
		err = util.NewValidationError("request has no command context")
	default:
		result, err = fn(d, ctx, req.Context, req.Params)
	}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Result = result
	return resp
}

// Serve reads JSON-lines requests from r and writes one response line per
// request to w. Requests run concurrently, at most limit at a time (no
// bound when limit <= 0), so responses may arrive out of order. Serve
// returns when r is exhausted and every request has been answered.
func (d *Driver) Serve(ctx context.Context, r io.Reader, w io.Writer, limit int) error {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	write := func(resp *Response) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(resp)
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		req := &Request{}
		if err := json.Unmarshal([]byte(line), req); err != nil {
			if werr := write(&Response{ID: uuid.NewString(), Error: fmt.Sprintf("decoding request: %v", err)}); werr != nil {
				return werr
			}
			continue
		}
		g.Go(func() error {
			return write(d.Dispatch(ctx, req))
		})
	}
	werr := g.Wait()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requests: %w", err)
	}
	return werr
}
