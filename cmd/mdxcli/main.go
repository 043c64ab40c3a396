// Command mdxcli is a small demo driver over the mdict package: open a
// dictionary file, run one query, and print the result.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rodaine/table"

	"github.com/mdictkit/mdict"
)

func main() {
	path := flag.String("file", "", "path to an .mdx or .mdd file")
	word := flag.String("word", "", "keyword to look up")
	glob := flag.String("glob", "", "wildcard pattern to page through (e.g. app*)")
	max := flag.Int("max", 20, "max results for -glob")
	flag.Parse()

	if *path == "" || (*word == "" && *glob == "") {
		fmt.Fprintln(os.Stderr, "usage: mdxcli -file dict.mdx (-word cat | -glob 'ca*')")
		os.Exit(2)
	}

	reader, err := mdict.OpenPath(*path)
	if err != nil {
		fatal("open %s: %v", *path, err)
	}
	defer reader.Close()

	if *word != "" {
		runExact(reader, *word)
		return
	}
	runGlob(reader, *glob, *max)
}

func runExact(reader *mdict.Reader, word string) {
	hits, err := reader.GetWordList(word)
	if err != nil {
		fatal("lookup %q: %v", word, err)
	}
	if len(hits) == 0 {
		color.Yellow("no match for %q", word)
		return
	}

	def, err := reader.GetDefinition(hits[0].Offset)
	if err != nil {
		fatal("get definition for %q: %v", hits[0].Word, err)
	}

	color.Cyan("%s", hits[0].Word)
	fmt.Println(def)
}

func runGlob(reader *mdict.Reader, pattern string, max int) {
	headerFmt := color.New(color.FgGreen, color.Bold).SprintfFunc()
	columnFmt := color.New(color.FgWhite).SprintfFunc()

	tbl := table.New("Word", "Offset")
	tbl.WithHeaderFormatter(headerFmt).WithFirstColumnFormatter(columnFmt)

	total := 0
	q := mdict.Query{Phrase: pattern, Max: max}
	for {
		hits, exhausted, err := reader.GetWordListPage(q)
		if err != nil {
			fatal("match %q: %v", pattern, err)
		}
		for _, h := range hits {
			if total >= max {
				break
			}
			tbl.AddRow(h.Word, h.Offset)
			total++
		}
		if exhausted || total >= max {
			break
		}
		q.Follow = true
	}

	tbl.Print()
}

func fatal(format string, args ...interface{}) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "mdxcli: "+format+"\n", args...)
	os.Exit(1)
}
