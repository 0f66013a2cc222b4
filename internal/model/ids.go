package model

import "strconv"

// IDs are SQLite rowids (activities use an in-memory counter). 0 means
// "no entity".
type (
	NodeID     int64
	EdgeID     int64
	TreeID     int64
	ActivityID int64
)

func (id NodeID) IsZero() bool { return id == 0 }
func (id EdgeID) IsZero() bool { return id == 0 }
func (id TreeID) IsZero() bool { return id == 0 }
func (id ActivityID) IsZero() bool { return id == 0 }

func (id NodeID) String() string { return "node:" + strconv.FormatInt(int64(id), 10) }
func (id EdgeID) String() string { return "edge:" + strconv.FormatInt(int64(id), 10) }
func (id TreeID) String() string { return "tree:" + strconv.FormatInt(int64(id), 10) }
func (id ActivityID) String() string { return "activity:" + strconv.FormatInt(int64(id), 10) }
