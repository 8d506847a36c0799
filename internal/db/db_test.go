// Package db contains SurrealDB integration tests for job persistence.
package db

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		// No container; tests that need one skip themselves.
		os.Exit(m.Run())
	}

	// Ryuk can fail to start in some CI environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// testcontainers may report "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func TestPutAndGetJob(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	require.NoError(t, testDB.QueryPutJob(ctx, "put-get", "pending", `{"job_id":"put-get"}`, time.Hour))

	row, err := testDB.QueryGetJob(ctx, "put-get")
	require.NoError(t, err)
	assert.Equal(t, `{"job_id":"put-get"}`, row.Payload)
	assert.Equal(t, "pending", row.Status)
	assert.True(t, row.ExpiresAt.After(time.Now().Add(50*time.Minute)))
}

func TestPutOverwritesWholeRecord(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	require.NoError(t, testDB.QueryPutJob(ctx, "overwrite", "pending", `{"v":1}`, time.Hour))
	require.NoError(t, testDB.QueryPutJob(ctx, "overwrite", "downloading", `{"v":2}`, time.Hour))

	row, err := testDB.QueryGetJob(ctx, "overwrite")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, row.Payload)
	assert.Equal(t, "downloading", row.Status)
}

func TestGetMissingJob(t *testing.T) {
	requireDB(t)
	_, err := testDB.QueryGetJob(context.Background(), "never-created")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpiredJobIsAbsentAndPurged(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	require.NoError(t, testDB.QueryPutJob(ctx, "short-lived", "pending", `{}`, time.Second))
	require.NoError(t, testDB.QueryPutJob(ctx, "long-lived", "pending", `{}`, time.Hour))

	time.Sleep(1500 * time.Millisecond)

	_, err := testDB.QueryGetJob(ctx, "short-lived")
	assert.ErrorIs(t, err, ErrNotFound)

	purged, err := testDB.QueryPurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"short-lived"}, purged)

	_, err = testDB.QueryGetJob(ctx, "long-lived")
	assert.NoError(t, err)
}

func TestRefreshExtendsExpiry(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	require.NoError(t, testDB.QueryPutJob(ctx, "refreshed", "pending", `{}`, 2*time.Second))
	time.Sleep(1 * time.Second)
	require.NoError(t, testDB.QueryPutJob(ctx, "refreshed", "downloading", `{}`, 2*time.Second))
	time.Sleep(1500 * time.Millisecond)

	row, err := testDB.QueryGetJob(ctx, "refreshed")
	require.NoError(t, err)
	assert.Equal(t, "downloading", row.Status)
}

func TestDeleteJob(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	require.NoError(t, testDB.QueryPutJob(ctx, "doomed", "failed", `{}`, time.Hour))

	deleted, err := testDB.QueryDeleteJob(ctx, "doomed")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = testDB.QueryDeleteJob(ctx, "doomed")
	require.NoError(t, err)
	assert.False(t, deleted, "second delete is a no-op")
}

func TestCountByStatus(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	require.NoError(t, testDB.WipeData(ctx))

	require.NoError(t, testDB.QueryPutJob(ctx, "a", "completed", `{}`, time.Hour))
	require.NoError(t, testDB.QueryPutJob(ctx, "b", "completed", `{}`, time.Hour))
	require.NoError(t, testDB.QueryPutJob(ctx, "c", "failed", `{}`, time.Hour))

	counts, err := testDB.QueryCountByStatus(ctx)
	require.NoError(t, err)

	byStatus := map[string]int{}
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	assert.Equal(t, map[string]int{"completed": 2, "failed": 1}, byStatus)
}

// requireDB skips t when no SurrealDB container was started.
func requireDB(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skip("skipping integration test in short mode")
	}
}

func TestTTLLiteral(t *testing.T) {
	assert.Equal(t, "86400s", ttlLiteral(24*time.Hour))
	assert.Equal(t, "1s", ttlLiteral(10*time.Millisecond))
}
