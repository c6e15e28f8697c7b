package main

import (
	"context"
	"flag"
	"log"
	"time"

	storelib "github.com/adityaraj/storegate/clients/library"
	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/file_io"
	"github.com/adityaraj/storegate/internal/log_service"
)

// Demo worker: appends a line to a shared report file under a transaction,
// then reads the result back. Run several instances against one coordinator
// to watch the grants serialize.
func main() {
	var (
		coordinator = flag.String("coordinator", "localhost:7410", "Coordinator address")
		listen      = flag.String("listen", "localhost:7411", "Address to receive grant pushes on")
		workerID    = flag.String("worker-id", "", "Worker ID (random when empty)")
		namespace   = flag.String("namespace", "", "Message namespace")
	)
	flag.Parse()

	ls := log_service.NewStdoutLogService("worker", log_service.DebugLevel)
	comm := communication.NewHTTPCommunicator(*listen, *namespace, ls)
	client := storelib.NewClient(*coordinator, *workerID, comm, ls)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.Start(ctx); err != nil {
		log.Fatalf("Failed to start client: %v", err)
	}
	defer client.Close()

	report := storelib.NewFile(client, file_io.NewLocalDiscFileIO(), communication.FileMetadata{
		Extension: ".log",
		Name:      "run-report",
		Scope:     communication.ScopeGlobal,
	})

	err := report.Transaction(ctx, func(f *storelib.File) error {
		line := time.Now().Format(time.RFC3339) + " worker " + client.WorkerID() + " passed\n"
		return f.AppendText(ctx, line)
	})
	if err != nil {
		log.Fatalf("Failed to update report: %v", err)
	}

	content, err := report.ReadText(ctx)
	if err != nil {
		log.Fatalf("Failed to read report: %v", err)
	}
	log.Printf("Report so far:\n%s", content)
}
