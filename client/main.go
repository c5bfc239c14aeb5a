package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	logPath := flag.String("log", "", "write debug logs to this file")
	flag.StringVar(&chatPath, "path", defaultChatPath, "websocket path of the chat server")
	flag.Parse()

	if *logPath != "" {
		f, err := tea.LogToFile(*logPath, "debug")
		if err != nil {
			fmt.Println("fatal:", err)
			os.Exit(1)
		}
		defer f.Close()
	}

	net := NewNetwork()
	defer net.Disconnect()

	p := tea.NewProgram(initialModel(net), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
