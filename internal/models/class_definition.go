package models

// ClassDefinitionSnapshot is the course-management view of a class definition
// at the moment of an operation. It is owned and mutated elsewhere; the
// timetabling core fetches it per call and never caches it across requests,
// since capacity and waitlist policy can change between requests.
type ClassDefinitionSnapshot struct {
	ID            string `json:"id"`
	CourseID      string `json:"course_id"`
	Capacity      int    `json:"capacity"`
	AllowWaitlist bool   `json:"allow_waitlist"`
}

// Unlimited reports whether the class has no seat limit.
func (c ClassDefinitionSnapshot) Unlimited() bool {
	return c.Capacity <= 0
}
