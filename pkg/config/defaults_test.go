package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	project := &Project{
		Name: "lab",
		Services: map[string]*Service{
			"worker": {
				Name:  "worker",
				Build: &BuildConfig{},
				Healthcheck: &Healthcheck{
					Test: HealthTest{"CMD-SHELL", "true"},
				},
			},
		},
	}

	ApplyDefaults(project)

	worker := project.Services["worker"]
	assert.Equal(t, "no", worker.Restart)
	assert.Equal(t, ".", worker.Build.Context)
	assert.Equal(t, "Dockerfile", worker.Build.Dockerfile)
	assert.Equal(t, "lab-worker", worker.Image)

	require.NotNil(t, worker.StopGracePeriod)
	assert.Equal(t, 10*time.Second, time.Duration(*worker.StopGracePeriod))

	assert.Equal(t, Duration(30*time.Second), worker.Healthcheck.Interval)
	assert.Equal(t, Duration(30*time.Second), worker.Healthcheck.Timeout)
	assert.Equal(t, 3, worker.Healthcheck.Retries)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	grace := Duration(time.Minute)
	project := &Project{
		Name: "lab",
		Services: map[string]*Service{
			"db": {
				Name:            "db",
				Image:           "postgres:16",
				Restart:         "unless-stopped",
				StopGracePeriod: &grace,
			},
		},
	}

	ApplyDefaults(project)

	db := project.Services["db"]
	assert.Equal(t, "postgres:16", db.Image)
	assert.Equal(t, "unless-stopped", db.Restart)
	assert.Equal(t, Duration(time.Minute), *db.StopGracePeriod)
	assert.Nil(t, db.Healthcheck)
}
