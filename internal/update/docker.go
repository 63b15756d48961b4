package update

import (
	"context"
	"time"

	"github.com/schmitthub/devcell/internal/config"
	"github.com/schmitthub/devcell/internal/docker"
)

// DefaultStopTimeout is how long a container gets to exit before it is killed.
const DefaultStopTimeout = 15 * time.Second

// DockerLifecycle implements Lifecycle on the Docker adapter.
type DockerLifecycle struct {
	Client      *docker.Client
	StopTimeout time.Duration
}

func (d *DockerLifecycle) Inspect(ctx context.Context, name string) (*docker.ContainerState, bool, error) {
	return d.Client.InspectContainer(ctx, name)
}

func (d *DockerLifecycle) Stop(ctx context.Context, name string) error {
	timeout := d.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	return d.Client.StopContainer(ctx, name, timeout)
}

func (d *DockerLifecycle) Start(ctx context.Context, name, image string, spec docker.RunSpec) error {
	_, err := d.Client.RunContainer(ctx, name, image, spec)
	return err
}

func (d *DockerLifecycle) Remove(ctx context.Context, name string) error {
	return d.Client.RemoveContainer(ctx, name)
}

func (d *DockerLifecycle) Health(ctx context.Context, name string) (docker.HealthState, error) {
	return d.Client.ContainerHealth(ctx, name)
}

// DockerImages implements Images on the Docker adapter.
type DockerImages struct {
	Client *docker.Client
}

func (d *DockerImages) Exists(ctx context.Context, ref string) (bool, error) {
	return d.Client.ImageExists(ctx, ref)
}

func (d *DockerImages) ID(ctx context.Context, ref string) (docker.LocalImageID, error) {
	return d.Client.ImageID(ctx, ref)
}

func (d *DockerImages) Version(ctx context.Context, ref string) (string, error) {
	return d.Client.ImageVersion(ctx, ref)
}

func (d *DockerImages) Tag(ctx context.Context, source, target string) error {
	return d.Client.TagImage(ctx, source, target)
}

func (d *DockerImages) Untag(ctx context.Context, ref string) error {
	return d.Client.UntagImage(ctx, ref)
}

func (d *DockerImages) Purge(ctx context.Context) (uint64, error) {
	return d.Client.PruneDanglingImages(ctx)
}

// SettingsConfig implements Config on loaded settings.
type SettingsConfig struct {
	Settings *config.Settings
	Instance string
}

func (c *SettingsConfig) ImageSource() config.ImageSource {
	return c.Settings.Image.Source
}

func (c *SettingsConfig) CheckPolicy() config.CheckPolicy {
	return c.Settings.Update.Check
}

// RunSpec builds the container configuration from settings.
func (c *SettingsConfig) RunSpec() (docker.RunSpec, error) {
	exposed, bindings, err := config.ParsePorts(c.Settings.Container.Ports)
	if err != nil {
		return docker.RunSpec{}, err
	}
	return docker.RunSpec{
		Binds:        append([]string(nil), c.Settings.Container.Mounts...),
		ExposedPorts: exposed,
		PortBindings: bindings,
		Env:          append([]string(nil), c.Settings.Container.Env...),
		Labels:       docker.ManagedLabels(c.Instance),
	}, nil
}

var (
	_ Lifecycle = (*DockerLifecycle)(nil)
	_ Images    = (*DockerImages)(nil)
	_ Config    = (*SettingsConfig)(nil)
)
