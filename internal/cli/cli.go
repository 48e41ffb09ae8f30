// ============================================================================
// Taskcore CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides user-friendly command line interface based on Cobra framework
//
// Command Structure:
//   taskcore                    # Root command
//   ├── run                        # Start queue system
//   │   └── --config, -c          # Specify config file
//   ├── enqueue                    # Submit jobs
//   │   └── --file, -f            # Specify job JSON file
//   ├── status                     # View system status
//   ├── --version                  # Display version information
//   └── --help                     # Display help information
//
// Configuration Management:
//   Uses YAML format config file (default: configs/default.yaml)
//   Configuration items include:
//   - worker: Worker count and timeout settings
//   - wal: WAL log configuration
//   - snapshot: Snapshot strategy configuration
//   - metrics: Prometheus monitoring configuration
//
// run Command:
//   Starts complete queue system, including:
//   1. Load config file
//   2. Create and start Controller
//   3. Start Metrics HTTP server (if enabled)
//   4. Listen for system signals (SIGINT, SIGTERM)
//   5. Gracefully shutdown system
//
//   Examples:
//     ./taskcore run
//     ./taskcore run -c custom-config.yaml
//
// enqueue Command:
//   Batch submit jobs from JSON file
//   JSON format:
//   [
//     {
//       "id": "job-1",
//       "payload": {"key": "value"},
//       "timeout_ms": 5000
//     }
//   ]
//
//   Examples:
//     ./taskcore enqueue -f jobs.json
//
// status Command:
//   Display system running status:
//   - Config file path
//   - WAL/Snapshot status
//   - Worker status
//
//   Examples:
//     ./taskcore status
//
// Signal Handling:
//   run command captures following signals and gracefully shuts down:
//   - SIGINT (Ctrl+C): User interrupt
//   - SIGTERM: System terminate request
//
//   Graceful shutdown flow:
//   1. Stop accepting new jobs
//   2. Wait for current jobs to complete
//   3. Create final snapshot
//   4. Close all resources
//
// Metrics Service:
//   If enabled in config, starts HTTP service in separate goroutine:
//   - Port: cfg.Metrics.Port from the config file (no default is applied)
//   - Path: /metrics
//   - Format: Prometheus format
//
// Error Handling:
//   - Config load failed: Return detailed error information
//   - Controller start failed: Clean up resources and return
//   - Job submission failed: Display error but don't interrupt system
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/falconqueue/taskcore/internal/controller"
	"github.com/falconqueue/taskcore/internal/diagnose"
	"github.com/falconqueue/taskcore/internal/metrics"
	"github.com/falconqueue/taskcore/internal/nac/protocol"
	"github.com/falconqueue/taskcore/internal/nac/tclient"
	"github.com/falconqueue/taskcore/internal/server"
	"github.com/falconqueue/taskcore/internal/worker"
	"github.com/falconqueue/taskcore/pkg/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config represents the complete system configuration structure
// Maps config file fields through YAML tags
type Config struct {
	Worker struct {
		WorkerCount int           `yaml:"worker_count"`
		TaskTimeout time.Duration `yaml:"task_timeout"`
	} `yaml:"worker"`

	WAL struct {
		Dir              string `yaml:"dir"`
		MaxSegmentSize   int64  `yaml:"max_segment_size"`
		SyncInterval     int    `yaml:"sync_interval"`
		RetentionSeconds int    `yaml:"retention_seconds"`
		BufferSize       int    `yaml:"buffer_size"`
		FlushIntervalMs  int    `yaml:"flush_interval_ms"` // NEW: batch flush interval in ms
	} `yaml:"wal"`

	Snapshot struct {
		Dir             string `yaml:"dir"`
		IntervalSeconds int    `yaml:"interval_seconds"`
		RetentionCount  int    `yaml:"retention_count"`
	} `yaml:"snapshot"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

var (
	configFile string
	globalCtrl *controller.Controller
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "taskcore",
		Short: "Taskcore: A crash-recoverable job queue system",
		Long: `Taskcore is a distributed job queue with:
- WAL-based durability
- Snapshot-based recovery
- Prometheus metrics
- Sub-3 second recovery time`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildEnqueueCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	var mode string
	var port int
	var masterAddr string
	var executorKind string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the Taskcore queue system",
		Long:  "Start the system in standalone, master, or worker mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseExecutorKind(executorKind)
			if err != nil {
				return err
			}
			return runSystem(mode, port, masterAddr, kind)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "standalone", "System mode: standalone, master, worker")
	cmd.Flags().IntVar(&port, "port", 50051, "Port to listen on (master mode)")
	cmd.Flags().StringVar(&masterAddr, "master", "", "Master address (worker mode)")
	cmd.Flags().StringVar(&executorKind, "executor", "workerpool", "Task executor: workerpool (concurrent) or fiber (single-threaded, serialized)")

	return cmd
}

// parseExecutorKind maps the --executor flag onto a worker.ExecutorKind.
func parseExecutorKind(s string) (worker.ExecutorKind, error) {
	switch s {
	case "workerpool", "":
		return worker.ExecutorKindWorkerPool, nil
	case "fiber":
		return worker.ExecutorKindFiber, nil
	default:
		return 0, fmt.Errorf("unknown --executor %q (want workerpool or fiber)", s)
	}
}

func runSystem(mode string, port int, masterAddr string, executorKind worker.ExecutorKind) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log.Printf("Starting Taskcore in %s mode\n", mode)

	if mode == "worker" {
		return runWorkerNode(cfg, masterAddr, executorKind)
	}

	// Master or Standalone Mode
	return runControllerNode(cfg, mode, port, executorKind)
}

func runWorkerNode(cfg *Config, masterAddr string, executorKind worker.ExecutorKind) error {
	if masterAddr == "" {
		return fmt.Errorf("master address is required in worker mode")
	}

	log.Printf("Connecting to master at %s...\n", masterAddr)

	access, err := dialNacAccess(masterAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to master: %w", err)
	}
	defer access.Disconnect()

	workerID := fmt.Sprintf("worker-%d", time.Now().UnixNano())
	source := worker.NewNacJobSource(access, workerID, "")

	registerCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = source.Register(registerCtx, cfg.Worker.WorkerCount, []string{"default"})
	cancel()
	if err != nil {
		return fmt.Errorf("failed to register with master: %w", err)
	}

	// Create Worker Pool, backed by the Executor variant chosen via --executor
	var pool *worker.Pool
	if executorKind == worker.ExecutorKindFiber {
		pool = worker.NewFiberPool(100)
	} else {
		pool = worker.NewPool(100)
	}

	// Start Worker Pool with Pull Mode
	log.Printf("Starting %d workers (executor=%v)...\n", cfg.Worker.WorkerCount, executorKind)
	if err := pool.Start(cfg.Worker.WorkerCount, source); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Stopping worker node...")
	pool.Stop()
	return nil
}

// dialNacAccess connects to a master's NAC listener and blocks until the
// session reaches Connected (or the auth/connect timeout expires).
func dialNacAccess(addr string) (*tclient.AccessCtrl, error) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return nil, err
	}

	cfg := tclient.DefaultAccessConfig()
	cfg.Host = host
	cfg.Port = port

	access := tclient.NewAccessCtrl(cfg, tclient.NewTCPTransport(), nil, nil)

	connected := make(chan struct{}, 1)
	sub := access.SubscribeState(func(old, new tclient.ConnectState) {
		if new == tclient.Connected {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	defer sub.Close()

	if err := access.Start(context.Background()); err != nil {
		return nil, err
	}

	select {
	case <-connected:
		return access, nil
	case <-time.After(cfg.AuthTimeout + 5*time.Second):
		access.Disconnect()
		return nil, fmt.Errorf("timed out connecting to %s", addr)
	}
}

// submitJobRemote sends a single SubmitJob request over an already-connected
// AccessCtrl and blocks for the response.
func submitJobRemote(access *tclient.AccessCtrl, jobID string, payload map[string]interface{}, timeoutMs int64) (protocol.SubmitJobResponse, error) {
	data, err := json.Marshal(protocol.SubmitJobRequest{JobID: jobID, Payload: payload, TimeoutMs: timeoutMs})
	if err != nil {
		return protocol.SubmitJobResponse{}, err
	}

	type outcome struct {
		resp protocol.SubmitJobResponse
		err  error
	}
	ch := make(chan outcome, 1)

	access.SendMsg(protocol.BizSubmitJob, data, 10*time.Second, func(pkt *tclient.Packet, err error) {
		if err != nil {
			ch <- outcome{err: err}
			return
		}
		var resp protocol.SubmitJobResponse
		if uerr := json.Unmarshal(pkt.Data, &resp); uerr != nil {
			ch <- outcome{err: uerr}
			return
		}
		ch <- outcome{resp: resp}
	})

	o := <-ch
	return o.resp, o.err
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return host, port, nil
}

func runControllerNode(cfg *Config, mode string, port int, executorKind worker.ExecutorKind) error {
	log.Printf("Starting Controller with config: %s\n", configFile)
	log.Printf("Workers: %d, Timeout: %s, Executor: %v\n", cfg.Worker.WorkerCount, cfg.Worker.TaskTimeout, executorKind)

	// If running in distributed Master mode, disable internal dispatch loops to avoid stealing jobs from remote workers.
	// This is critical for correct distributed operation (see PHASE2_DEBUG_REPORT.md).
	ctrlConfig := controller.Config{
		WorkerCount:      cfg.Worker.WorkerCount,
		TaskTimeout:      cfg.Worker.TaskTimeout,
		SnapshotInterval: time.Duration(cfg.Snapshot.IntervalSeconds) * time.Second,
		MaxRetry:         3,
		WALPath:          cfg.WAL.Dir,
		SnapshotPath:     cfg.Snapshot.Dir,
		WALBufferSize:    cfg.WAL.BufferSize,
		WALFlushInterval: time.Duration(cfg.WAL.FlushIntervalMs) * time.Millisecond,
		DisableDispatchLoop: mode == "master", // <-- Key fix: disables local dispatchers in Master mode
		ExecutorKind:        executorKind,
	}

	ctrl, err := controller.NewController(ctrlConfig)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	globalCtrl = ctrl

	// Start Metrics
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector()
		metrics.BridgeDiagnostics(collector, diagnose.Global())

		go func() {
			http.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			log.Printf("Starting metrics server on %s\n", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Printf("Metrics server error: %v\n", err)
			}
		}()
	}

	// Start Controller
	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("failed to start controller: %w", err)
	}

	// If Master mode, start the NAC listener workers dial into for job polling/ack
	if mode == "master" {
		srv := server.NewServer(ctrl)
		listener := server.NewNacListener(srv, nil)

		listenerCtx, cancelListener := context.WithCancel(context.Background())
		addr := fmt.Sprintf(":%d", port)
		log.Printf("NAC listener accepting workers on %s\n", addr)

		go func() {
			if err := listener.Serve(listenerCtx, addr); err != nil {
				log.Printf("NAC listener stopped: %v\n", err)
			}
		}()
		defer cancelListener()
	}

	log.Println("System started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("\nReceived shutdown signal, stopping gracefully...")

	ctrl.Stop()

	log.Println("System stopped. Goodbye!")
	return nil
}

func buildEnqueueCommand() *cobra.Command {
	var jobFile string
	var masterAddr string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue jobs from a JSON file",
		Long:  "Read job definitions from a JSON file and enqueue them. Use --master to submit to a remote master.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobFile == "" {
				return fmt.Errorf("job file is required (use --file or -f)")
			}
			return enqueueJobs(jobFile, masterAddr)
		},
	}

	cmd.Flags().StringVarP(&jobFile, "file", "f", "", "JSON file containing job definitions")
	cmd.Flags().StringVar(&masterAddr, "master", "", "Master address (e.g. localhost:50051) for remote submission")
	cmd.MarkFlagRequired("file")

	return cmd
}

func enqueueJobs(filePath string, masterAddr string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read job file: %w", err)
	}

	var jobsInput []struct {
		ID      string                 `json:"id"`
		Payload map[string]interface{} `json:"payload"`
		Timeout int64                  `json:"timeout_ms"`
	}

	if err := json.Unmarshal(data, &jobsInput); err != nil {
		return fmt.Errorf("failed to parse job file: %w", err)
	}

	// Mode 1: Remote Submission (NAC)
	if masterAddr != "" {
		access, err := dialNacAccess(masterAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to master: %w", err)
		}
		defer access.Disconnect()

		successCount := 0
		for _, j := range jobsInput {
			resp, err := submitJobRemote(access, j.ID, j.Payload, j.Timeout)
			if err != nil {
				log.Printf("Failed to submit job %s: %v\n", j.ID, err)
				continue
			}
			if !resp.Success {
				log.Printf("Master rejected job %s: %s\n", j.ID, resp.ErrorMessage)
				continue
			}
			successCount++
		}
		log.Printf("Successfully submitted %d/%d jobs to %s\n", successCount, len(jobsInput), masterAddr)
		return nil
	}

	// Mode 2: Local Submission (Direct Controller)
	if globalCtrl == nil {
		cfg, err := loadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctrlConfig := controller.Config{
			WorkerCount:      cfg.Worker.WorkerCount,
			TaskTimeout:      cfg.Worker.TaskTimeout,
			SnapshotInterval: time.Duration(cfg.Snapshot.IntervalSeconds) * time.Second,
			MaxRetry:         3,
			WALPath:          cfg.WAL.Dir,
			SnapshotPath:     cfg.Snapshot.Dir,
			WALBufferSize:    cfg.WAL.BufferSize,
			WALFlushInterval: time.Duration(cfg.WAL.FlushIntervalMs) * time.Millisecond,
		}

		ctrl, err := controller.NewController(ctrlConfig)
		if err != nil {
			return fmt.Errorf("failed to create controller: %w", err)
		}

		globalCtrl = ctrl
		if err := ctrl.Start(); err != nil {
			return fmt.Errorf("failed to start controller: %w", err)
		}
	}

	var jobs []types.Job
	for _, j := range jobsInput {
		jobs = append(jobs, types.Job{
			ID:      types.JobID(j.ID),
			Payload: j.Payload,
			Timeout: time.Duration(j.Timeout) * time.Millisecond,
		})
	}

	log.Printf("Enqueuing %d jobs from %s locally\n", len(jobs), filePath)
	if err := globalCtrl.EnqueueJobs(jobs); err != nil {
		return fmt.Errorf("failed to enqueue jobs: %w", err)
	}

	log.Printf("Successfully enqueued %d jobs locally\n", len(jobs))
	return nil
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		Long:  "Display job queue statistics and system health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("\n╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║           Taskcore System Status                       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	// System Configuration
	fmt.Println("📋 Configuration:")
	fmt.Printf("  └─ Config File:     %s\n", configFile)
	fmt.Printf("  └─ Worker Count:    %d\n", cfg.Worker.WorkerCount)
	fmt.Printf("  └─ Task Timeout:    %s\n", cfg.Worker.TaskTimeout)
	fmt.Printf("  └─ Snapshot Every:  %ds\n", cfg.Snapshot.IntervalSeconds)
	fmt.Println()

	// Storage Configuration
	fmt.Println("💾 Storage:")
	fmt.Printf("  ├─ WAL Directory:       %s\n", cfg.WAL.Dir)
	fmt.Printf("  │  └─ Buffer Size:      %d entries\n", cfg.WAL.BufferSize)
	fmt.Printf("  │  └─ Max Segment Size: %.1f MB\n", float64(cfg.WAL.MaxSegmentSize)/(1024*1024))
	fmt.Printf("  └─ Snapshot Directory:  %s\n", cfg.Snapshot.Dir)
	fmt.Printf("     └─ Retention Count:  %d\n", cfg.Snapshot.RetentionCount)
	fmt.Println()

	// Job Queue Statistics (if controller is running)
	if globalCtrl != nil {
		stats := globalCtrl.GetStats()
		total := stats["pending"] + stats["in_flight"] + stats["completed"] + stats["dead"]

		fmt.Println("📊 Job Queue Statistics:")
		fmt.Printf("  ├─ Total Jobs:     %d\n", total)
		fmt.Printf("  ├─ ⏳ Pending:      %d\n", stats["pending"])
		fmt.Printf("  ├─ 🔄 In-Flight:    %d\n", stats["in_flight"])
		fmt.Printf("  ├─ ✅ Completed:    %d\n", stats["completed"])
		fmt.Printf("  └─ ❌ Dead:         %d\n", stats["dead"])
		fmt.Println()

		// Calculate success rate
		if total > 0 {
			successRate := float64(stats["completed"]) / float64(total) * 100
			fmt.Printf("📈 Success Rate: %.1f%%\n", successRate)
			fmt.Println()
		}
	} else {
		fmt.Println("📊 Job Queue Statistics:")
		fmt.Println("  └─ Controller not running (run 'taskcore run' to start)")
		fmt.Println()
	}

	// Metrics Status
	fmt.Println("📡 Metrics:")
	if cfg.Metrics.Enabled {
		fmt.Printf("  └─ Status: ✅ Enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Println("  └─ Status: ⚠️  Disabled")
	}
	fmt.Println()

	fmt.Println("═══════════════════════════════════════════════════════════")
	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &cfg, nil
}
