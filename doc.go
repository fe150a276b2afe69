// Package pgo is a PostgreSQL client with built-in connection
// pooling.
//
// It speaks the frontend/backend wire protocol (version 3.0) directly:
// parameters and result columns travel in the binary format, queries
// run through the extended protocol, and server errors surface with
// every error field the server sent.
//
// Pools are named and process-wide:
//
//	pgo.StartPool("default", &pgo.PoolConfig{
//		Host: "localhost", User: "app", Database: "app", Size: 10,
//	})
//	result, err := pgo.Query(ctx, "select name from users where id = $1", 42)
//
// Transaction checks out a connection, runs BEGIN, and binds the
// connection into the context it passes to the body, so nested queries
// share the same backend session without threading a handle:
//
//	err := pgo.Transaction(ctx, func(ctx context.Context) error {
//		if _, err := pgo.Query(ctx, "insert into audit values ($1)", event); err != nil {
//			return err
//		}
//		_, err := pgo.Query(ctx, "update counters set n = n + 1")
//		return err
//	})
//
// A body that returns an error (or panics) rolls the transaction back
// and the failure propagates unchanged.
package pgo
