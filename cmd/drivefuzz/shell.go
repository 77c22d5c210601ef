package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/calvinalkan/drivefuzz/pkg/drive"
	"github.com/calvinalkan/drivefuzz/pkg/fuzz"
)

// shell is the post-run inspection REPL. It reads the primary drive the
// scenario just ran against, so failures can be poked at interactively
// instead of replayed from the artifact.
type shell struct {
	drive  *drive.Memory
	report *fuzz.Report
	liner  *liner.State
}

func runShell(primary *drive.Memory, report *fuzz.Report) error {
	s := &shell{drive: primary, report: report}

	return s.run()
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".drivefuzz_history")
}

func (s *shell) run() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(historyFile()); err == nil {
		s.liner.ReadHistory(f)
		f.Close()
	}

	counters := s.drive.Counters()
	fmt.Printf("drivefuzz shell (key=%s, log=%d entries)\n", shortKey(s.drive.Key()), counters.Offset)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := s.liner.Prompt("drivefuzz> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")

			s.saveHistory()

			return nil

		case "help", "?":
			s.printHelp()

		case "stat":
			s.cmdStat(args)

		case "cat":
			s.cmdCat(args)

		case "ls", "list":
			s.cmdList()

		case "counters":
			s.cmdCounters()

		case "key":
			fmt.Println(s.drive.Key())

		case "log":
			s.cmdLog(args)

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	s.saveHistory()

	return nil
}

func (s *shell) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			s.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (s *shell) completer(line string) []string {
	commands := []string{
		"stat", "cat", "ls", "list",
		"counters", "key", "log",
		"clear", "cls",
		"help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (s *shell) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  stat <path>      Show size and counters for a file or directory")
	fmt.Println("  cat <path>       Dump a file's content")
	fmt.Println("  ls               List paths the run left behind")
	fmt.Println("  counters         Show the drive's version counters")
	fmt.Println("  key              Show the drive's public root key")
	fmt.Println("  log [n]          Show the last n run-log entries (default 20)")
	fmt.Println("  clear            Clear the screen")
	fmt.Println("  help             Show this help")
	fmt.Println("  exit / quit / q  Exit")
}

func (s *shell) cmdStat(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: stat <path>")

		return
	}

	stat, err := s.drive.Stat(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if stat.IsDir {
		fmt.Printf("directory  offset=%d byteOffset=%d\n", stat.Offset, stat.ByteOffset)

		return
	}

	fmt.Printf("file  size=%d\n", stat.Size)
}

func (s *shell) cmdCat(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: cat <path>")

		return
	}

	stat, statErr := s.drive.Stat(args[0])
	if statErr != nil {
		fmt.Printf("Error: %v\n", statErr)

		return
	}

	if stat.IsDir {
		fmt.Println("Error: path is a directory")

		return
	}

	stream, streamErr := s.drive.CreateReadStream(args[0], 0, stat.Size)
	if streamErr != nil {
		fmt.Printf("Error: %v\n", streamErr)

		return
	}

	defer stream.Close()

	content, readErr := io.ReadAll(stream)
	if readErr != nil {
		fmt.Printf("Error: %v\n", readErr)

		return
	}

	fmt.Printf("%d bytes:\n%s\n", len(content), hex.Dump(content))
}

// cmdList replays the run log to recover the set of live paths. Deletes
// drop a path; every flavor of write adds one.
func (s *shell) cmdList() {
	if s.report == nil {
		fmt.Println("No run log available.")

		return
	}

	files := make(map[string]bool)
	dirs := make(map[string]bool)

	for _, res := range s.report.RunLog {
		if res.Path == "" {
			continue
		}

		switch res.Kind {
		case fuzz.KindWriteFile, fuzz.KindOverwriteFile, fuzz.KindWriteAndMkdir:
			files[res.Path] = true

			if res.Dir != "" {
				dirs[res.Dir] = true
			}

		case fuzz.KindDeleteFile:
			delete(files, res.Path)
		}
	}

	paths := make([]string, 0, len(files)+len(dirs))
	for path := range files {
		paths = append(paths, path)
	}

	for path := range dirs {
		paths = append(paths, path+"/")
	}

	sort.Strings(paths)

	for _, path := range paths {
		fmt.Println(path)
	}

	fmt.Printf("%d files, %d directories\n", len(files), len(dirs))
}

func (s *shell) cmdCounters() {
	counters := s.drive.Counters()
	fmt.Printf("offset=%d byteOffset=%d\n", counters.Offset, counters.ByteOffset)
}

func (s *shell) cmdLog(args []string) {
	if s.report == nil {
		fmt.Println("No run log available.")

		return
	}

	limit := 20

	if len(args) == 1 {
		parsed, parseErr := strconv.Atoi(args[0])
		if parseErr != nil || parsed <= 0 {
			fmt.Println("Usage: log [n]")

			return
		}

		limit = parsed
	}

	runLog := s.report.RunLog
	start := len(runLog) - limit

	if start < 0 {
		start = 0
	}

	for i := start; i < len(runLog); i++ {
		res := runLog[i]
		fmt.Printf("%6d  %-18s %-24q %s\n", i, res.Kind, res.Path, res.Detail)
	}
}

func shortKey(key string) string {
	const visible = 12

	if len(key) <= visible {
		return key
	}

	return key[:visible] + "…"
}
