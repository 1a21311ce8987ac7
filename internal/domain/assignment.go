package domain

// Target names who a task should go to. At most one of the two fields is
// expected to be set; an empty target means "unassigned".
type Target struct {
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
}

// IsEmpty reports whether the target names nobody.
func (t Target) IsEmpty() bool {
	return t.UserID == "" && t.GroupID == ""
}

// Assignment is a concrete {userId, groupId} pair. Both nil means unassigned.
// A group with a nil user is an unclaimed group task.
type Assignment struct {
	UserID  *string
	GroupID *string
}

// IsEmpty reports whether nobody is assigned.
func (a Assignment) IsEmpty() bool {
	return a.UserID == nil && a.GroupID == nil
}

// Target converts the assignment back into a target.
func (a Assignment) Target() Target {
	var t Target
	if a.UserID != nil {
		t.UserID = *a.UserID
	}
	if a.GroupID != nil {
		t.GroupID = *a.GroupID
	}
	return t
}

// DirectoryUser is a user known to the tenant directory.
type DirectoryUser struct {
	TenantID    string
	UserID      string
	Email       string
	DisplayName string
	IsActive    bool
}
