// Package photopipe implements an event-driven ingestion pipeline for
// uploaded media objects: object-store notifications are routed onto a
// fan-out topic, a validation worker accepts or rejects each upload,
// rejected items travel the dead-letter path to a rejection mailer, and
// accepted uploads produce a confirmation email and a metadata record
// that later attribute updates patch in place.
//
// The broker, record store, object store and mailer are injected
// interfaces; subpackages provide in-memory doubles alongside the real
// SNS/SQS, DynamoDB, Postgres, S3 and SES implementations.
package photopipe
