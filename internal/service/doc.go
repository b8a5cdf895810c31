// Package service wires the ingest engine for the command line.
//
// A Service opens the case, registers every configured data source in it
// and runs one ingest job per data source on a shared ingest.Manager:
//
//	Service.Do
//	   |-- Manager.Run (workers)
//	   |-- Monitor (gocron, logs job snapshots)
//	   `-- per data source
//	         walk -> store.AddFiles -> StartJob           (batch)
//	         OpenStream -> walk -> store.AddFiles
//	                    -> Stream.AddFiles -> Close       (streaming)
//
// Reports produced by the report module are written by the uploaders
// configured in service.dir, or to stdout.
package service
