package sqllite

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creditflow/creditflow/internal/app"
)

var portBase int32 = 9118 // starting port number (can be anything safe)

func nextPort() int {
	return int(atomic.AddInt32(&portBase, 1))
}

func runTestWithSetup(t *testing.T, testFunc func(t *testing.T, port int)) {
	port := nextPort()
	filename := fmt.Sprintf("creditflow-test-%d.db", port)
	defer os.Remove(filename)
	os.Setenv("HTTP_ADDR", ":"+strconv.Itoa(port))
	os.Setenv("CREDITFLOW_DATABASE_TYPE", "SQLLITE")
	os.Setenv("CREDITFLOW_DATABASE_SQLLITE_FILE_NAME", filename)

	go func() {
		if err := app.Start(http.NewServeMux()); err != nil {
			t.Logf("service stopped: %v", err)
		}
	}()
	waitForHealth(t, port)
	testFunc(t, port)
}

func waitForHealth(t *testing.T, port int) {
	t.Helper()
	url := fmt.Sprintf("http://localhost:%d/health", port)
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("service never became healthy")
}
