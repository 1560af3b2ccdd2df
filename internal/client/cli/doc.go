// Package cli is the clipkeeper device command line.
//
// Commands
//
//	sync            run one sync pass over every kind
//	daemon          sync periodically until interrupted
//	import <file>   merge a legacy snapshot into the local store
//	status          show pending changes and checkpoints
//	files           list file entries
//	files add       create entries (--as file|note|attachment, --folder id)
//	files edit <id> change --title, --description, --abbreviation or --fav
//
// Configuration flags are described in package config and may appear
// anywhere on the command line.
package cli
