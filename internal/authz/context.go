package authz

import "context"

type subjectContextKey struct{}

// ContextWithSubject stores the resolved subject in the context.
func ContextWithSubject(ctx context.Context, subject Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subject)
}

// SubjectFromContext extracts the subject from the context. The second
// return value is false when no subject was resolved for this request.
func SubjectFromContext(ctx context.Context) (Subject, bool) {
	subject, ok := ctx.Value(subjectContextKey{}).(Subject)
	return subject, ok
}
