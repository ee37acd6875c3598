package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) ensureIndexes() error {
	if cli.indexer == nil {
		return errNoIndexes
	}
	if err := cli.indexer.EnsureIndexes(context.Background()); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "indexes ensured")
	return nil
}

func (cli *commandLine) reconcile() error {
	report, err := cli.crsSvc.Reconcile(context.Background())
	if err != nil {
		return err
	}
	if report.Total() == 0 {
		fmt.Fprintln(cli.out, "nothing to repair")
		return nil
	}
	fmt.Fprintf(cli.out, "teachers unset: %d\n", report.TeachersUnset)
	fmt.Fprintf(cli.out, "students pulled: %d\n", report.StudentsPulled)
	fmt.Fprintf(cli.out, "assigned courses added: %d\n", report.AssignedCoursesAdded)
	fmt.Fprintf(cli.out, "assigned courses pulled: %d\n", report.AssignedCoursesPulled)
	fmt.Fprintf(cli.out, "enrolled courses added: %d\n", report.EnrolledCoursesAdded)
	fmt.Fprintf(cli.out, "enrolled courses pulled: %d\n", report.EnrolledCoursesPulled)
	fmt.Fprintf(cli.out, "orphan activities deleted: %d\n", report.OrphanActivitiesDeleted)
	fmt.Fprintf(cli.out, "orphan grades deleted: %d\n", report.OrphanGradesDeleted)
	return nil
}
