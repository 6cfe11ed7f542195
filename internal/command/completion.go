package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/staranto/cellcachego/internal/meta"
)

const bashCompletionScript = `# bash completion for cellcache
# Fallback if bash-completion is not installed
if ! declare -F _get_comp_words_by_ref >/dev/null 2>&1; then
  _get_comp_words_by_ref() {
    cur=${COMP_WORDS[COMP_CWORD]}
    prev=${COMP_WORDS[COMP_CWORD-1]}
  }
fi

_cellcache()
{
    local cur prev cmd
    COMPREPLY=()
    _get_comp_words_by_ref -n : cur prev

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "info stage completion --help --version" -- "$cur") )
        return 0
    fi

    cmd=${COMP_WORDS[1]}
    local common="--attrs -a --color -c --filter -f --output -o --query -q --sort -s --titles -t --examples"
    local service="--budget -b --dir -d --enabled --no-enabled --cache-all --retry-pause"

    case "$cmd" in
        info)
            local opts="$common $service"
            ;;
        stage)
            local opts="$common $service --cache-id --count -n --size --workers -w --clean --retrieve -r --stats"
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh" -- "$cur") )
            return 0
            ;;
        *)
            local opts="$common"
            ;;
    esac

    case "$prev" in
        --output|-o)
            COMPREPLY=( $(compgen -W "text json raw yaml" -- "$cur") )
            return 0
            ;;
        --dir|-d)
            COMPREPLY=( $(compgen -o dirnames -- "$cur") )
            return 0
            ;;
    esac

    COMPREPLY=( $(compgen -W "$opts" -- "$cur") )
    return 0
}

complete -F _cellcache cellcache
`

const zshCompletionScript = `#compdef cellcache

_cellcache() {
  local -a cmds
  cmds=(
    'info:show effective cache settings'
    'stage:stage synthetic cells through a cache service'
    'completion:generate shell completion script'
  )

  local -a common
  common=(
  '(-a --attrs)'{-a,--attrs}'[columns to show]:attrs'
  '(-c --color)'{-c,--color}'[enable colored text]'
  '(-f --filter)'{-f,--filter}'[filters to apply]:filters'
  '(-o --output)'{-o,--output}'[output format]:format:(text json raw yaml)'
  '(-q --query)'{-q,--query}'[gjson path]:path'
  '(-s --sort)'{-s,--sort}'[sort columns]:columns'
  '(-t --titles)'{-t,--titles}'[show titles]'
  '--examples[show examples]'
  '(-b --budget)'{-b,--budget}'[store budget]:bytes'
  '(-d --dir)'{-d,--dir}'[store directory]:dir:_directories'
  '--enabled[accept writes]'
  '--cache-all[stage clean cells]'
  '--retry-pause[pause between retried reads]:duration'
  )

  if (( CURRENT == 2 )); then
    _describe -t commands 'cellcache commands' cmds
    return
  fi

  local curcontext="$curcontext" state line
  case $words[2] in
    info)
      _arguments -C $common
      ;;
    stage)
      _arguments -C \
        $common \
        '--cache-id[cache id]:id' \
        '(-n --count)'{-n,--count}'[cells to stage]:count' \
        '--size[bytes per cell]:bytes' \
        '(-w --workers)'{-w,--workers}'[concurrent writers]:workers' \
        '--clean[stage unmodified cells]' \
        '(-r --retrieve)'{-r,--retrieve}'[verify by reading back]' \
        '--stats[report service counters]'
      ;;
    completion)
      _arguments '1: :((bash zsh))'
      ;;
  esac
}

# If this file is sourced directly (not autoloaded via fpath), ensure compsys is initialized and register the completion
if ! typeset -f compdef >/dev/null 2>&1; then
  autoload -Uz compinit && compinit -i
fi
compdef _cellcache cellcache
`

func CompletionCommandAction(ctx context.Context, cmd *cli.Command) error {
	w := Writer(cmd)

	shell := ""
	if args := cmd.Args().Slice(); len(args) > 0 {
		shell = args[0]
	}
	if shell == "" {
		// Try to detect from SHELL.
		switch sh := os.Getenv("SHELL"); {
		case strings.HasSuffix(sh, "zsh"):
			shell = "zsh"
		case strings.HasSuffix(sh, "bash"):
			shell = "bash"
		}
	}

	switch shell {
	case "bash":
		fmt.Fprint(w, bashCompletionScript)
	case "zsh":
		fmt.Fprint(w, zshCompletionScript)
	default:
		return errors.New("usage: cellcache completion [bash|zsh]")
	}
	return nil
}

func CompletionCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return &cli.Command{
		Name:      "completion",
		Usage:     "generate shell completion script",
		UsageText: "cellcache completion [bash|zsh]",
		Metadata: map[string]any{
			"meta": meta,
		},
		Action: CompletionCommandAction,
	}
}
