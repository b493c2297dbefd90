// Package bootstrap runs an eventstream service: it validates the typed
// config, initializes the logger, starts registered components in order,
// runs lifecycle hooks and shuts everything down on SIGINT/SIGTERM.
//
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    return err
//	}
//	app.RegisterComponent(eventLog)
//	app.RegisterComponent(server.NewComponent(srv))
//	return app.Run(ctx)
//
// RunTask does the same for finite work, such as tailing a stream until
// it is interrupted.
package bootstrap
