package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"askmydocs/internal/client"
	"askmydocs/internal/tui"
)

func main() {
	serverURL := flag.String("server", "http://127.0.0.1:8000", "Base URL of the askmydocs server")
	documentID := flag.String("document", "", "Scope questions to a single document id")
	flag.Parse()

	api := client.New(*serverURL)

	// Upload any files passed as arguments before starting the chat.
	for _, path := range flag.Args() {
		res, err := api.Upload(context.Background(), path)
		if err != nil {
			log.Fatalf("upload %s failed: %v", path, err)
		}
		fmt.Printf("Uploaded %s (%s)\n", res.Filename, res.DocumentID)
	}

	banner := "Ask questions about your uploaded documents. Ctrl+C to quit."
	if *documentID != "" {
		banner = fmt.Sprintf("Questions scoped to document %s. Ctrl+C to quit.", *documentID)
	}

	m := tui.New(api, *documentID, banner)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}
