// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the parley command line.
//
// Commands:
//
//	parley signup | login | logout | whoami
//	parley history                 Browse conversations
//	parley list | new | rename | delete | share
//	parley chat [id]               Interactive chat
//	parley ask <question>          Start a new chat with a question
//	parley export <id>             Write a conversation to a file
//	parley upload <file>           Send a file through the relay
//	parley relay serve             Run the upload relay
//
// Interactive chat commands:
//
//	/help, /h           Show available commands
//	/edit               Rewrite an earlier question and ask again
//	/regenerate, /r     Ask for a new answer to the last question
//	/new                Start a new conversation
//	/history            Show the conversation so far
//	/share              Print a share link
//	/quit, /q           Exit chat
//	Ctrl+C              Stop the current reply
//	Ctrl+D              Exit chat
package cli
