// Command cometab はA/Bテスト用ランディングページ、クリック記録API、集計ワーカーを1つのバイナリで提供する。
//
// 使い方:
//
//	cometab [serve|landing|worker|migrate|healthcheck [port]]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/cometab/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "cometab: %v\n", err)
		os.Exit(1)
	}
}
