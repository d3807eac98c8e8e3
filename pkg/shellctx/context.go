// Package shellctx models the execution context the orchestration platform
// passes to every driver command: how to reach the platform API, which
// resource the command targets and, for reservation-scoped commands, the
// reservation it runs in.
package shellctx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Connectivity describes how to reach the platform API.
type Connectivity struct {
	ServerAddress       string `yaml:"server_address" json:"server_address"`
	AdminAuthToken      string `yaml:"admin_auth_token" json:"admin_auth_token"`
	CloudShellAPIPort   string `yaml:"cloudshell_api_port" json:"cloudshell_api_port"`
	CloudShellAPIScheme string `yaml:"cloudshell_api_scheme" json:"cloudshell_api_scheme"`
}

// Resource is the managed switch as the platform knows it.
type Resource struct {
	Name       string            `yaml:"name" json:"name"`
	FullName   string            `yaml:"fullname" json:"fullname"`
	Address    string            `yaml:"address" json:"address"`
	Family     string            `yaml:"family" json:"family"`
	Model      string            `yaml:"model" json:"model"`
	Attributes map[string]string `yaml:"attributes" json:"attributes"`
}

// Reservation identifies the sandbox a command runs in.
type Reservation struct {
	ReservationID string `yaml:"reservation_id" json:"reservation_id"`
	Environment   string `yaml:"environment_name" json:"environment_name"`
	Domain        string `yaml:"domain" json:"domain"`
	Owner         string `yaml:"owner_user" json:"owner_user"`
	OwnerEmail    string `yaml:"owner_email" json:"owner_email"`
}

// Context is implemented by every command context.
type Context interface {
	GetConnectivity() *Connectivity
	GetResource() *Resource
	GetReservation() *Reservation
}

// ResourceCommandContext is passed to reservation-scoped commands.
type ResourceCommandContext struct {
	Connectivity *Connectivity `yaml:"connectivity" json:"connectivity"`
	Resource     *Resource     `yaml:"resource" json:"resource"`
	Reservation  *Reservation  `yaml:"reservation" json:"reservation"`
}

// AutoLoadCommandContext is passed to inventory discovery.
type AutoLoadCommandContext struct {
	Connectivity *Connectivity `yaml:"connectivity" json:"connectivity"`
	Resource     *Resource     `yaml:"resource" json:"resource"`
}

// InitCommandContext is passed once when the driver instance is created.
type InitCommandContext struct {
	Connectivity *Connectivity `yaml:"connectivity" json:"connectivity"`
	Resource     *Resource     `yaml:"resource" json:"resource"`
}

func (c *ResourceCommandContext) GetConnectivity() *Connectivity { return c.Connectivity }
func (c *ResourceCommandContext) GetResource() *Resource         { return c.Resource }
func (c *ResourceCommandContext) GetReservation() *Reservation   { return c.Reservation }

func (c *AutoLoadCommandContext) GetConnectivity() *Connectivity { return c.Connectivity }
func (c *AutoLoadCommandContext) GetResource() *Resource         { return c.Resource }
func (c *AutoLoadCommandContext) GetReservation() *Reservation   { return nil }

func (c *InitCommandContext) GetConnectivity() *Connectivity { return c.Connectivity }
func (c *InitCommandContext) GetResource() *Resource         { return c.Resource }
func (c *InitCommandContext) GetReservation() *Reservation   { return nil }

// AutoLoad narrows a resource context to what discovery receives.
func (c *ResourceCommandContext) AutoLoad() *AutoLoadCommandContext {
	return &AutoLoadCommandContext{Connectivity: c.Connectivity, Resource: c.Resource}
}

// Init narrows a resource context to what initialization receives.
func (c *ResourceCommandContext) Init() *InitCommandContext {
	return &InitCommandContext{Connectivity: c.Connectivity, Resource: c.Resource}
}

// Attribute looks up a resource attribute by its namespaced name
// ("<shell>.<name>") first and then by its bare name.
func (r *Resource) Attribute(shell, name string) (string, bool) {
	if r == nil || r.Attributes == nil {
		return "", false
	}
	if shell != "" {
		if v, ok := r.Attributes[shell+"."+name]; ok {
			return v, true
		}
	}
	v, ok := r.Attributes[name]
	return v, ok
}

// ReservationID returns the reservation id of ctx, or "" outside a reservation.
func ReservationID(ctx Context) string {
	if r := ctx.GetReservation(); r != nil {
		return r.ReservationID
	}
	return ""
}

// Validate checks the fields every command needs.
func Validate(ctx Context) error {
	var missing []string
	r := ctx.GetResource()
	if r == nil {
		missing = append(missing, "resource")
	} else {
		if r.Name == "" {
			missing = append(missing, "resource.name")
		}
		if r.Address == "" {
			missing = append(missing, "resource.address")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("command context missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Decode reads a resource command context from r. YAML and JSON documents
// are both accepted.
func Decode(r io.Reader) (*ResourceCommandContext, error) {
	var ctx ResourceCommandContext
	if err := yaml.NewDecoder(r).Decode(&ctx); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty command context")
		}
		return nil, fmt.Errorf("parsing command context: %w", err)
	}
	if ctx.Connectivity == nil {
		ctx.Connectivity = &Connectivity{}
	}
	if err := Validate(&ctx); err != nil {
		return nil, err
	}
	return &ctx, nil
}

// Load reads a resource command context from a file.
func Load(path string) (*ResourceCommandContext, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening command context: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
