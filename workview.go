package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/annolab/workview/server"
)

func main() {
	parser := argparse.NewParser("workview", "Annotation service for the workview image and video editor")
	configFilePath := parser.String("c", "config", &argparse.Options{Help: "Config file path", Default: "workview.json"})
	port := parser.String("p", "port", &argparse.Options{Help: "HTTP listen address", Default: ":8084"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	s, err := server.NewServer(*configFilePath)
	if err != nil {
		panic(err)
	}
	s.ListenForKillSignals()
	if err := s.ListenHTTP(*port); err != nil {
		fmt.Printf("%v\n", err)
	}
}
