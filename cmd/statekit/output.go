package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/statekit-dev/statekit/engine"
)

func printHistory(chain []engine.HistoryEntry) {
	if len(chain) == 0 {
		fmt.Println("(no layers)")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Hash", "Parent", "Time", "Instruction"})
	table.SetAutoWrapText(false)
	for _, l := range chain {
		parent := "(root)"
		if l.Parent != nil {
			parent = short(*l.Parent)
		}
		when := time.UnixMilli(l.Time).UTC().Format(time.RFC3339)
		table.Append([]string{short(l.Hash), parent, when, l.Instruction})
	}
	table.Render()
}

func printStatus(st engine.Status) {
	if st.Clean() {
		fmt.Println(color.GreenString("clean"))
		return
	}
	for _, rel := range st.Added {
		fmt.Printf("%s %s\n", color.GreenString("added"), rel)
	}
	for _, rel := range st.Modified {
		fmt.Printf("%s %s\n", color.YellowString("modified"), rel)
	}
	for _, rel := range st.Deleted {
		fmt.Printf("%s %s\n", color.RedString("deleted"), rel)
	}
}

func printTags(tags map[string]string) {
	if len(tags) == 0 {
		fmt.Println("(no tags)")
		return
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Tag", "Hash"})
	for _, name := range names {
		table.Append([]string{name, short(tags[name])})
	}
	table.Render()
}

func printLayerInfo(info engine.LayerInfo) {
	parent := "(root)"
	if info.Parent != nil {
		parent = short(*info.Parent)
	}
	fmt.Printf("hash:        %s\n", info.Hash)
	fmt.Printf("parent:      %s\n", parent)
	fmt.Printf("instruction: %s\n", info.Instruction)
	fmt.Printf("time:        %s\n", time.UnixMilli(info.Time).UTC().Format(time.RFC3339))
	fmt.Printf("size:        %d bytes\n", info.Size)
}
