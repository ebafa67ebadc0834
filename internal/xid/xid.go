package xid

import (
	"log"

	"github.com/bwmarrin/snowflake"
)

var node *snowflake.Node

func init() {
	n, err := snowflake.NewNode(1)
	if err != nil {
		log.Fatalf("[xid] snowflake node init failed: %v", err)
	}
	node = n
}

// Configure replaces the process-wide generator node. Call once at startup
// before any ids are issued; node ids must differ between processes sharing
// a database.
func Configure(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	node = n
	return nil
}

// New returns a unique, roughly time-ordered int64 id.
func New() int64 {
	return node.Generate().Int64()
}
