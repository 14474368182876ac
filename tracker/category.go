package tracker

// Category is the semantic class a watched path is assigned to.
type Category int

const (
	CategorySettings Category = iota
	CategoryContext
	CategoryTask
	CategoryRequirement
	CategorySubFolder
	CategoryIgnored
)

var categoryNames = map[Category]string{
	CategorySettings:    "Settings",
	CategoryContext:     "Context",
	CategoryTask:        "Task",
	CategoryRequirement: "Requirement",
	CategorySubFolder:   "SubFolder",
	CategoryIgnored:     "Ignored",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "Unknown"
}
